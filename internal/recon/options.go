package recon

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration marks errors that make a stream unprocessable: bad
// options, or an encoding with no decoder.
var ErrConfiguration = errors.New("reconstruction configuration error")

// Options are the reconstruction parameters fixed at construction.
type Options struct {
	CutoffNumEvents int     // accumulator cutoff period, in events per pixel (sign ignored)
	FPS             float64 // periodic frame rate; sign ignored
	FillRatio       float64 // fraction of active pixels used to scale the read-out
	TileSize        int     // accumulator activity tile edge, in pixels
	TimeOffsetNs    int64   // added to every event time before scheduling
	FrameTimes      []int64 // explicit frame stamps; empty selects periodic mode
}

// DefaultOptions returns the defaults used when a field is not configured.
func DefaultOptions() Options {
	return Options{
		CutoffNumEvents: 30,
		FPS:             25.0,
		FillRatio:       0.6,
		TileSize:        2,
	}
}

// Validate checks option ranges. Errors wrap ErrConfiguration.
func (o Options) Validate() error {
	if o.FPS == 0 || math.IsNaN(o.FPS) || math.IsInf(o.FPS, 0) {
		return fmt.Errorf("%w: fps must be finite and non-zero, got %v", ErrConfiguration, o.FPS)
	}
	if 1e9/math.Abs(o.FPS) >= math.MaxInt64 {
		return fmt.Errorf("%w: fps %v gives a frame interval beyond the int64 range", ErrConfiguration, o.FPS)
	}
	if FrameInterval(o.FPS) < 1 {
		return fmt.Errorf("%w: fps %v gives a frame interval below 1ns", ErrConfiguration, o.FPS)
	}
	if o.CutoffNumEvents == 0 {
		return fmt.Errorf("%w: cutoff_num_events must be non-zero", ErrConfiguration)
	}
	if o.TileSize < 1 {
		return fmt.Errorf("%w: tile_size must be at least 1, got %d", ErrConfiguration, o.TileSize)
	}
	if !(o.FillRatio > 0 && o.FillRatio <= 1) {
		return fmt.Errorf("%w: fill_ratio must be in (0, 1], got %v", ErrConfiguration, o.FillRatio)
	}
	for i := 1; i < len(o.FrameTimes); i++ {
		if o.FrameTimes[i] < o.FrameTimes[i-1] {
			return fmt.Errorf("%w: frame_times must be ascending (index %d: %d after %d)",
				ErrConfiguration, i, o.FrameTimes[i], o.FrameTimes[i-1])
		}
	}
	return nil
}
