package synth

import (
	"testing"

	"github.com/banshee-data/evrecon/internal/codec"
)

func TestMovingBar(t *testing.T) {
	events := MovingBar(4, 3, 1000, 600, 2)
	if len(events) != 4*3*2*2 {
		t.Fatalf("len = %d, want %d", len(events), 4*3*2*2)
	}
	for i := 1; i < len(events); i++ {
		if events[i].T < events[i-1].T {
			t.Fatalf("events not sorted at %d: %d after %d", i, events[i].T, events[i-1].T)
		}
	}
	for _, e := range events {
		if e.X >= 4 || e.Y >= 3 {
			t.Fatalf("event out of bounds: %+v", e)
		}
	}
	if events[0].T != 1000 || events[0].Polarity != 1 {
		t.Errorf("first event = %+v", events[0])
	}
	// Column 1 of the first sweep starts one step later.
	if got := events[6].T; got != 1600 {
		t.Errorf("second column starts at %d, want 1600", got)
	}
	if MovingBar(0, 3, 0, 1, 1) != nil {
		t.Error("zero width should produce no events")
	}
}

func TestBurst(t *testing.T) {
	events := Burst(50, 1, 2, 3)
	want := []codec.Event{{T: 50, X: 1, Y: 2}, {T: 50, X: 1, Y: 2, Polarity: 1}, {T: 50, X: 1, Y: 2}}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestSplit(t *testing.T) {
	events := Burst(0, 0, 0, 5)
	chunks := Split(events, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Errorf("Split(5, 2) gave %d chunks", len(chunks))
	}
	if Split(events, 0) != nil {
		t.Error("Split with n=0 should return nil")
	}
}
