package recon

import "testing"

func TestFrameInterval(t *testing.T) {
	tests := []struct {
		fps  float64
		want int64
	}{
		{25, 40_000_000},
		{-25, 40_000_000},
		{3, 333_333_333},
		{1000, 1_000_000},
		{0.5, 2_000_000_000},
	}
	for _, tt := range tests {
		if got := FrameInterval(tt.fps); got != tt.want {
			t.Errorf("FrameInterval(%v) = %d, want %d", tt.fps, got, tt.want)
		}
	}
}

func TestScheduler_PeriodicInitializeAligns(t *testing.T) {
	tests := []struct {
		name string
		t0   int64
		want int64
	}{
		{"aligned anchor", 1_000_000_000, 1_000_000_000},
		{"mid-interval anchor", 1_010_000_000, 1_000_000_000},
		{"just before next tick", 1_039_999_999, 1_000_000_000},
		{"zero anchor", 0, 0},
		{"negative anchor floors down", -1, -40_000_000},
		{"negative aligned anchor", -80_000_000, -80_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(25, nil)
			s.Initialize(tt.t0)
			if s.Next() != tt.want {
				t.Errorf("Initialize(%d): next = %d, want %d", tt.t0, s.Next(), tt.want)
			}
			if s.Explicit() {
				t.Error("expected periodic mode")
			}
		})
	}
}

func TestScheduler_PeriodicAdvance(t *testing.T) {
	s := NewScheduler(25, nil)
	s.Initialize(1_000_000_000)
	for i := 1; i <= 5; i++ {
		s.Advance()
		want := 1_000_000_000 + int64(i)*40_000_000
		if s.Next() != want {
			t.Fatalf("after %d advances next = %d, want %d", i, s.Next(), want)
		}
	}
}

func TestScheduler_DueIsStrict(t *testing.T) {
	s := NewScheduler(25, nil)
	s.Initialize(1_000_000_000)
	if s.Due(1_000_000_000) {
		t.Error("an event exactly on the boundary must not be due")
	}
	if !s.Due(1_000_000_001) {
		t.Error("an event past the boundary must be due")
	}
}

func TestScheduler_ExplicitSkipsEarlyTimesAndFallsBack(t *testing.T) {
	times := []int64{500, 1500, 2500}
	s := NewScheduler(25, times)
	times[1] = 0 // the scheduler owns a copy

	s.Initialize(1000)
	if !s.Explicit() {
		t.Fatal("expected explicit mode")
	}
	if s.Next() != 1500 {
		t.Fatalf("first boundary = %d, want 1500", s.Next())
	}
	s.Advance()
	if s.Next() != 2500 {
		t.Fatalf("second boundary = %d, want 2500", s.Next())
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", s.Pending())
	}
	s.Advance()
	if want := int64(2500 + 40_000_000); s.Next() != want {
		t.Fatalf("fallback boundary = %d, want %d", s.Next(), want)
	}
}

func TestScheduler_ExplicitAllBeforeAnchor(t *testing.T) {
	s := NewScheduler(25, []int64{100, 200})
	s.Initialize(1000)
	if want := int64(200 + 40_000_000); s.Next() != want {
		t.Errorf("next = %d, want %d (fallback from the last discarded stamp)", s.Next(), want)
	}
}

func TestScheduler_ExplicitStampEqualToAnchorIsKept(t *testing.T) {
	s := NewScheduler(25, []int64{1000, 2000})
	s.Initialize(1000)
	if s.Next() != 1000 {
		t.Errorf("next = %d, want 1000", s.Next())
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{-8, 2, -4},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
