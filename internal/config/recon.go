// Package config loads reconstruction settings from JSON. Fields left out
// of the file fall back to the defaults returned by the Get* accessors, so
// partial configs are safe.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/evrecon/internal/recon"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Image formats understood by the frame image writer.
var imageFormats = map[string]bool{"png": true, "bmp": true, "tiff": true}

// ReconConfig is the on-disk form of the reconstruction options plus the
// output settings of the evrecon command.
type ReconConfig struct {
	CutoffNumEvents *int     `json:"cutoff_num_events,omitempty"`
	FPS             *float64 `json:"fps,omitempty"`
	FillRatio       *float64 `json:"fill_ratio,omitempty"`
	TileSize        *int     `json:"tile_size,omitempty"`
	TimeOffsetNs    *int64   `json:"time_offset_ns,omitempty"`

	// Explicit frame stamps in ns. FrameTimesFile is read when FrameTimes
	// is empty.
	FrameTimes     []int64 `json:"frame_times,omitempty"`
	FrameTimesFile *string `json:"frame_times_file,omitempty"`

	Topic       *string `json:"topic,omitempty"`
	ImageFormat *string `json:"image_format,omitempty"` // png, bmp or tiff
}

// LoadReconConfig loads a ReconConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadReconConfig(path string) (*ReconConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ReconConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields that are set. Cross-field checks such as the
// minimum frame interval are left to recon.Options.Validate.
func (c *ReconConfig) Validate() error {
	if c.CutoffNumEvents != nil && *c.CutoffNumEvents == 0 {
		return fmt.Errorf("cutoff_num_events must be non-zero")
	}
	if c.FPS != nil && *c.FPS == 0 {
		return fmt.Errorf("fps must be non-zero")
	}
	if c.FillRatio != nil {
		if *c.FillRatio <= 0 || *c.FillRatio > 1 {
			return fmt.Errorf("fill_ratio must be in (0, 1], got %f", *c.FillRatio)
		}
	}
	if c.TileSize != nil && *c.TileSize < 1 {
		return fmt.Errorf("tile_size must be at least 1, got %d", *c.TileSize)
	}
	for i := 1; i < len(c.FrameTimes); i++ {
		if c.FrameTimes[i] < c.FrameTimes[i-1] {
			return fmt.Errorf("frame_times must be ascending, index %d is %d after %d",
				i, c.FrameTimes[i], c.FrameTimes[i-1])
		}
	}
	if c.ImageFormat != nil && !imageFormats[strings.ToLower(*c.ImageFormat)] {
		return fmt.Errorf("image_format must be png, bmp or tiff, got %q", *c.ImageFormat)
	}
	if c.Topic != nil && *c.Topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	return nil
}

// GetCutoffNumEvents returns the accumulator cutoff, default 30.
func (c *ReconConfig) GetCutoffNumEvents() int {
	if c.CutoffNumEvents == nil {
		return recon.DefaultOptions().CutoffNumEvents
	}
	return *c.CutoffNumEvents
}

// GetFPS returns the periodic frame rate, default 25.
func (c *ReconConfig) GetFPS() float64 {
	if c.FPS == nil {
		return recon.DefaultOptions().FPS
	}
	return *c.FPS
}

// GetFillRatio returns the read-out fill ratio, default 0.6.
func (c *ReconConfig) GetFillRatio() float64 {
	if c.FillRatio == nil {
		return recon.DefaultOptions().FillRatio
	}
	return *c.FillRatio
}

// GetTileSize returns the activity tile size, default 2.
func (c *ReconConfig) GetTileSize() int {
	if c.TileSize == nil {
		return recon.DefaultOptions().TileSize
	}
	return *c.TileSize
}

// GetTimeOffsetNs returns the offset added to event times, default 0.
func (c *ReconConfig) GetTimeOffsetNs() int64 {
	if c.TimeOffsetNs == nil {
		return 0
	}
	return *c.TimeOffsetNs
}

// GetTopic returns the output topic name, default "image_raw".
func (c *ReconConfig) GetTopic() string {
	if c.Topic == nil {
		return "image_raw"
	}
	return *c.Topic
}

// GetImageFormat returns the lower-cased image file format, default "png".
func (c *ReconConfig) GetImageFormat() string {
	if c.ImageFormat == nil {
		return "png"
	}
	return strings.ToLower(*c.ImageFormat)
}

// Options builds the core reconstruction options. A frame-times file is
// read only when no inline frame_times were given.
func (c *ReconConfig) Options() (recon.Options, error) {
	opts := recon.Options{
		CutoffNumEvents: c.GetCutoffNumEvents(),
		FPS:             c.GetFPS(),
		FillRatio:       c.GetFillRatio(),
		TileSize:        c.GetTileSize(),
		TimeOffsetNs:    c.GetTimeOffsetNs(),
		FrameTimes:      append([]int64(nil), c.FrameTimes...),
	}
	if len(opts.FrameTimes) == 0 && c.FrameTimesFile != nil && *c.FrameTimesFile != "" {
		times, err := LoadFrameTimes(*c.FrameTimesFile)
		if err != nil {
			return recon.Options{}, err
		}
		opts.FrameTimes = times
	}
	if err := opts.Validate(); err != nil {
		return recon.Options{}, err
	}
	return opts, nil
}

// LoadFrameTimes reads frame stamps from a text file: one integer ns
// timestamp per line. Blank lines and lines starting with # are skipped.
func LoadFrameTimes(path string) ([]int64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame times file: %w", err)
	}
	defer f.Close()
	times, err := ParseFrameTimes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return times, nil
}

// ParseFrameTimes parses the frame-times text format from r.
func ParseFrameTimes(r io.Reader) ([]int64, error) {
	var times []int64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp %q", line, text)
		}
		times = append(times, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return times, nil
}
