// Package brightness is a lightweight per-pixel brightness estimator for
// event streams. Each event nudges a leaky integrator at its pixel; the
// read-out rescales the integrators to an 8-bit image using the spread of
// values over the recently active part of the sensor.
package brightness

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// mid is the grey level of a pixel that has seen no net change.
const mid = 128

// Accumulator implements recon.Accumulator. It is not safe for concurrent
// use.
type Accumulator struct {
	width, height  int
	tileSize       int
	tilesX, tilesY int
	fillRatio      float64
	alpha          float32

	state      []float32 // per-pixel brightness, row-major
	tileEvents []uint32  // events seen per tile

	scratch []float64
}

// New returns an accumulator that must be initialised before use.
func New() *Accumulator {
	return &Accumulator{}
}

// Initialize sizes the state for a width x height sensor and resets it.
// cutoffNumEvents is the integrator memory in events at one pixel; each
// event keeps 1 - 1/cutoffNumEvents of the previous value.
func (a *Accumulator) Initialize(width, height, cutoffNumEvents uint32, tileSize int, fillRatio float64) {
	if cutoffNumEvents == 0 {
		cutoffNumEvents = 1
	}
	if tileSize < 1 {
		tileSize = 1
	}
	a.width = int(width)
	a.height = int(height)
	a.tileSize = tileSize
	a.tilesX = (a.width + tileSize - 1) / tileSize
	a.tilesY = (a.height + tileSize - 1) / tileSize
	a.fillRatio = fillRatio
	a.alpha = 1 - 1/float32(cutoffNumEvents)
	a.state = make([]float32, a.width*a.height)
	a.tileEvents = make([]uint32, a.tilesX*a.tilesY)
	a.scratch = make([]float64, 0, a.width*a.height)
}

// Event integrates one event. Events outside the sensor are ignored.
func (a *Accumulator) Event(_ uint64, x, y uint16, polarity uint8) {
	xi, yi := int(x), int(y)
	if xi >= a.width || yi >= a.height {
		return
	}
	step := float32(-1)
	if polarity != 0 {
		step = 1
	}
	i := yi*a.width + xi
	a.state[i] = a.state[i]*a.alpha + step
	a.tileEvents[(yi/a.tileSize)*a.tilesX+xi/a.tileSize]++
}

// At returns the integrator value at (x, y).
func (a *Accumulator) At(x, y int) float32 {
	return a.state[y*a.width+x]
}

// GetImage writes the current estimate as mono8 into out, stride bytes
// per row. Bytes beyond the image width in each row are left untouched.
// Calling it twice without an intervening Event yields identical output.
func (a *Accumulator) GetImage(out []byte, stride int) {
	scale := a.scale()
	for y := 0; y < a.height; y++ {
		row := out[y*stride : y*stride+a.width]
		if scale == 0 {
			for x := range row {
				row[x] = mid
			}
			continue
		}
		for x := range row {
			v := mid + 127*float64(a.state[y*a.width+x])/scale
			row[x] = uint8(math.Round(math.Max(0, math.Min(255, v))))
		}
	}
}

// scale returns the fillRatio quantile of |state| over pixels in tiles
// that have received events, or 0 when nothing is active.
func (a *Accumulator) scale() float64 {
	vals := a.scratch[:0]
	for ty := 0; ty < a.tilesY; ty++ {
		for tx := 0; tx < a.tilesX; tx++ {
			if a.tileEvents[ty*a.tilesX+tx] == 0 {
				continue
			}
			y0, x0 := ty*a.tileSize, tx*a.tileSize
			for y := y0; y < y0+a.tileSize && y < a.height; y++ {
				for x := x0; x < x0+a.tileSize && x < a.width; x++ {
					vals = append(vals, math.Abs(float64(a.state[y*a.width+x])))
				}
			}
		}
	}
	a.scratch = vals
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	q := stat.Quantile(a.fillRatio, stat.Empirical, vals, nil)
	if q <= 0 {
		// Fall back to the largest magnitude so a sparse image is not
		// rendered flat.
		q = vals[len(vals)-1]
	}
	return q
}
