package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/framestore"
	"github.com/banshee-data/evrecon/internal/ingest"
	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recorder"
	"github.com/banshee-data/evrecon/internal/synth"
	"github.com/banshee-data/evrecon/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, args ...string) *cliFlags {
	t.Helper()
	fs := flag.NewFlagSet("evrecon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, err := parseFlags(fs, args)
	require.NoError(t, err)
	return f
}

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	events := synth.MovingBar(32, 16, 1_000_000_000, 5_000_000, 2)
	var arrays []*codec.EventArray
	for i, chunk := range synth.Split(events, 256) {
		arr := testutil.EncodeArray(t, codec.EncodingMono, 32, 16, chunk)
		arr.Seq = uint64(i)
		arr.Header.StampNs = int64(chunk[len(chunk)-1].T)
		arrays = append(arrays, arr)
	}
	path := filepath.Join(dir, "bar.pcap")
	require.NoError(t, ingest.WritePCAPFile(path, 3333, arrays))
	return path
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "recon.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"fps": 50, "tile_size": 4, "topic": "cam0/image"}`), 0o644))

	f := mustParse(t, "-config", cfgPath, "-fps", "10", "-format", "BMP")
	cfg, err := resolveConfig(f)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.GetFPS())
	assert.Equal(t, 4, cfg.GetTileSize())
	assert.Equal(t, "cam0/image", cfg.GetTopic())
	assert.Equal(t, "bmp", cfg.GetImageFormat())
	assert.Equal(t, 30, cfg.GetCutoffNumEvents())
}

func TestResolveConfig_Invalid(t *testing.T) {
	_, err := resolveConfig(mustParse(t, "-fill-ratio", "2"))
	assert.Error(t, err)
	_, err = resolveConfig(mustParse(t, "-format", "gif"))
	assert.Error(t, err)
}

func TestRun_RequiresOneSource(t *testing.T) {
	assert.Error(t, run(context.Background(), mustParse(t)))
	assert.Error(t, run(context.Background(), mustParse(t, "-pcap", "a.pcap", "-listen", ":0")))
}

func TestRun_ReplayToAllSinks(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = original }()

	dir := t.TempDir()
	capture := writeCapture(t, dir)
	outDir := filepath.Join(dir, "frames")
	dbPath := filepath.Join(dir, "frames.db")
	logPath := filepath.Join(dir, "run"+recorder.FileExtension)

	f := mustParse(t, "-pcap", capture, "-udp-port", "3333",
		"-out-dir", outDir, "-db", dbPath, "-record", logPath, "-log-interval", "0s")
	require.NoError(t, run(context.Background(), f))

	// Frames every 40ms from 1.00s while events continue to 1.32s.
	const wantFrames = 8

	images, err := filepath.Glob(filepath.Join(outDir, "image_raw", "frame_*.png"))
	require.NoError(t, err)
	assert.Len(t, images, wantFrames)

	store, err := framestore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, capture, latest.Source)
	rows, err := store.Frames(latest.ID, false)
	require.NoError(t, err)
	require.Len(t, rows, wantFrames)
	for i, row := range rows {
		assert.Equal(t, uint64(i), row.Seq)
		assert.Equal(t, int64(1_000_000_000+i*40_000_000), row.StampNs)
		assert.Equal(t, "cam0", row.FrameID)
	}

	rp, err := recorder.NewReplayer(logPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(wantFrames), rp.TotalFrames())
	assert.Equal(t, int64(1_000_000_000), rp.Header().StartNs)
}

func TestRun_UnknownEncodingFails(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = original }()

	dir := t.TempDir()
	arr := &codec.EventArray{Width: 4, Height: 4, Encoding: "evt21", Events: []byte{1, 2, 3, 4}}
	path := filepath.Join(dir, "bad.pcap")
	require.NoError(t, ingest.WritePCAPFile(path, 3333, []*codec.EventArray{arr}))

	err := run(context.Background(), mustParse(t, "-pcap", path, "-log-interval", "0s"))
	assert.ErrorContains(t, err, "evt21")
}
