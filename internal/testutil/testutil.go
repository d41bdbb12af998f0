// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"testing"

	"github.com/banshee-data/evrecon/internal/codec"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// EncodeArray encodes events with the named encoding into an EventArray
// for a width x height sensor.
func EncodeArray(t testing.TB, encoding string, width, height uint32, events []codec.Event) *codec.EventArray {
	t.Helper()
	enc, err := codec.NewEncoder(encoding)
	AssertNoError(t, err)
	data, base, err := enc.Encode(events, nil)
	AssertNoError(t, err)
	return &codec.EventArray{
		Header:   codec.Header{FrameID: "cam0"},
		Width:    width,
		Height:   height,
		Encoding: encoding,
		TimeBase: base,
		Events:   data,
	}
}
