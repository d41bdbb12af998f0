// Package framestore persists reconstructed frames and per-run metadata in
// sqlite so runs can be inspected and charted after the fact.
package framestore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recon"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store is a sqlite-backed frame store.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu  sync.Mutex
	err error
}

// RunMeta describes a reconstruction run when it is started.
type RunMeta struct {
	Topic   string
	Source  string // input description, e.g. a capture path or listen address
	Options recon.Options
}

// Run is a stored run with its frame count.
type Run struct {
	ID              string
	Topic           string
	Source          string
	FPS             float64
	CutoffNumEvents int
	FillRatio       float64
	TileSize        int
	TimeOffsetNs    int64
	ExplicitFrames  int
	StartedAt       time.Time
	FrameCount      int
}

// FrameRow is one stored frame. Mean and StdDev are over visible pixels.
type FrameRow struct {
	RunID   string
	Seq     uint64
	StampNs int64
	FrameID string
	Width   uint32
	Height  uint32
	Step    uint32
	Mean    float64
	StdDev  float64
	Data    []byte
}

// Open opens or creates the database at path and migrates it to the
// latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new run and returns its ID.
func (s *Store) StartRun(meta RunMeta) (string, error) {
	id := uuid.NewString()
	o := meta.Options
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, topic, source, fps, cutoff_num_events, fill_ratio,
			tile_size, time_offset_ns, explicit_frames, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, meta.Topic, meta.Source, o.FPS, o.CutoffNumEvents, o.FillRatio,
		o.TileSize, o.TimeOffsetNs, len(o.FrameTimes), s.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// Handler returns a FrameHandler that stores frames under runID. Insert
// failures are logged and the first is reported by Err.
func (s *Store) Handler(runID string) recon.FrameHandler {
	return recon.FrameHandlerFunc(func(f *recon.Frame, topic string) {
		if err := s.InsertFrame(runID, f); err != nil {
			monitoring.Logf("framestore: %v", err)
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
	})
}

// Err returns the first error seen by a Handler.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// InsertFrame stores one frame.
func (s *Store) InsertFrame(runID string, f *recon.Frame) error {
	mean, std := FrameStats(f)
	_, err := s.db.Exec(`
		INSERT INTO frames (run_id, seq, stamp_ns, frame_id, width, height, step, mean, stddev, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(f.Seq), f.Header.StampNs, f.Header.FrameID,
		f.Width, f.Height, f.Step, mean, std, f.Data)
	if err != nil {
		return fmt.Errorf("failed to insert frame %d: %w", f.Seq, err)
	}
	return nil
}

// FrameStats returns the mean and standard deviation of the visible
// pixels of a mono8 frame. Row padding beyond Width is excluded.
func FrameStats(f *recon.Frame) (mean, std float64) {
	if f.Width == 0 || f.Height == 0 {
		return 0, 0
	}
	vals := make([]float64, 0, int(f.Width)*int(f.Height))
	for y := 0; y < int(f.Height); y++ {
		row := y * int(f.Step)
		if row+int(f.Width) > len(f.Data) {
			break
		}
		for _, v := range f.Data[row : row+int(f.Width)] {
			vals = append(vals, float64(v))
		}
	}
	switch len(vals) {
	case 0:
		return 0, 0
	case 1:
		return vals[0], 0
	}
	return stat.MeanStdDev(vals, nil)
}

// Frames returns the frames of a run in sequence order. Pixel data is
// included only when withData is set.
func (s *Store) Frames(runID string, withData bool) ([]FrameRow, error) {
	cols := "seq, stamp_ns, frame_id, width, height, step, mean, stddev, NULL"
	if withData {
		cols = "seq, stamp_ns, frame_id, width, height, step, mean, stddev, data"
	}
	rows, err := s.db.Query("SELECT "+cols+" FROM frames WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		r := FrameRow{RunID: runID}
		var seq int64
		if err := rows.Scan(&seq, &r.StampNs, &r.FrameID, &r.Width, &r.Height, &r.Step,
			&r.Mean, &r.StdDev, &r.Data); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs returns every run, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.topic, r.source, r.fps, r.cutoff_num_events, r.fill_ratio,
			r.tile_size, r.time_offset_ns, r.explicit_frames, r.started_at,
			(SELECT COUNT(*) FROM frames f WHERE f.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Topic, &r.Source, &r.FPS, &r.CutoffNumEvents, &r.FillRatio,
			&r.TileSize, &r.TimeOffsetNs, &r.ExplicitFrames, &started, &r.FrameCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (Run, error) {
	runs, err := s.Runs()
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, sql.ErrNoRows
	}
	return runs[len(runs)-1], nil
}
