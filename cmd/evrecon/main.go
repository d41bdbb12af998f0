// Command evrecon reconstructs mono8 intensity frames from an event-camera
// stream, read either from a packet capture or from a live UDP socket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/evrecon/internal/brightness"
	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/config"
	"github.com/banshee-data/evrecon/internal/framesink"
	"github.com/banshee-data/evrecon/internal/framestore"
	"github.com/banshee-data/evrecon/internal/ingest"
	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recon"
	"github.com/banshee-data/evrecon/internal/recorder"
	"github.com/banshee-data/evrecon/internal/version"
)

type cliFlags struct {
	pcapFile    string
	udpPort     int
	listen      string
	rcvBuf      int
	configFile  string
	outDir      string
	format      string
	dbFile      string
	recordDir   string
	topic       string
	logInterval time.Duration
	debug       bool
	showVersion bool

	cutoff     int
	fps        float64
	fillRatio  float64
	tileSize   int
	offsetNs   int64
	frameTimes string

	set map[string]bool // flags given explicitly on the command line
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	defaults := recon.DefaultOptions()
	f := &cliFlags{}
	fs.StringVar(&f.pcapFile, "pcap", "", "Replay event arrays from a pcap/pcapng file")
	fs.IntVar(&f.udpPort, "udp-port", 3333, "UDP destination port of event arrays (pcap filter)")
	fs.StringVar(&f.listen, "listen", "", "Listen for live event arrays on this UDP address, e.g. :3333")
	fs.IntVar(&f.rcvBuf, "rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	fs.StringVar(&f.configFile, "config", "", "Path to a JSON reconstruction config")
	fs.StringVar(&f.outDir, "out-dir", "", "Write frames as image files under this directory")
	fs.StringVar(&f.format, "format", "png", "Image file format: png, bmp or tiff")
	fs.StringVar(&f.dbFile, "db", "", "Store frames in this sqlite database")
	fs.StringVar(&f.recordDir, "record", "", "Record frames to this "+recorder.FileExtension+" directory")
	fs.StringVar(&f.topic, "topic", "image_raw", "Output topic name")
	fs.DurationVar(&f.logInterval, "log-interval", 2*time.Second, "Statistics logging interval")
	fs.BoolVar(&f.debug, "debug", false, "Enable reconstruction diagnostics")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	fs.IntVar(&f.cutoff, "cutoff-num-events", defaults.CutoffNumEvents, "Accumulator cutoff period in events")
	fs.Float64Var(&f.fps, "fps", defaults.FPS, "Frame rate in periodic mode")
	fs.Float64Var(&f.fillRatio, "fill-ratio", defaults.FillRatio, "Fraction of active pixels used to scale brightness")
	fs.IntVar(&f.tileSize, "tile-size", defaults.TileSize, "Activity tile size in pixels")
	fs.Int64Var(&f.offsetNs, "time-offset-ns", 0, "Offset added to event times before scheduling")
	fs.StringVar(&f.frameTimes, "frame-times", "", "File of explicit frame stamps, one ns value per line")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.set = map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// resolveConfig loads the config file, if any, and applies explicitly set
// flags on top of it.
func resolveConfig(f *cliFlags) (*config.ReconConfig, error) {
	cfg := &config.ReconConfig{}
	if f.configFile != "" {
		loaded, err := config.LoadReconConfig(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.set["cutoff-num-events"] {
		cfg.CutoffNumEvents = &f.cutoff
	}
	if f.set["fps"] {
		cfg.FPS = &f.fps
	}
	if f.set["fill-ratio"] {
		cfg.FillRatio = &f.fillRatio
	}
	if f.set["tile-size"] {
		cfg.TileSize = &f.tileSize
	}
	if f.set["time-offset-ns"] {
		cfg.TimeOffsetNs = &f.offsetNs
	}
	if f.set["frame-times"] {
		cfg.FrameTimes = nil
		cfg.FrameTimesFile = &f.frameTimes
	}
	if f.set["topic"] || cfg.Topic == nil {
		cfg.Topic = &f.topic
	}
	if f.set["format"] || cfg.ImageFormat == nil {
		cfg.ImageFormat = &f.format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pipeline owns the reconstructor and the sinks it writes to.
type pipeline struct {
	rc       *recon.Reconstructor
	stats    *monitoring.StreamStats
	counter  *framesink.Counter
	images   *framesink.ImageWriter
	store    *framestore.Store
	recorder *recorder.Recorder
	events   uint64
}

func newPipeline(f *cliFlags, cfg *config.ReconConfig, source string) (*pipeline, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	p := &pipeline{stats: monitoring.NewStreamStats()}
	p.counter = &framesink.Counter{Stats: p.stats}
	sinks := framesink.Fanout{p.counter}

	if f.outDir != "" {
		p.images, err = framesink.NewImageWriter(f.outDir, cfg.GetImageFormat())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p.images)
	}
	if f.dbFile != "" {
		p.store, err = framestore.Open(f.dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open frame store: %w", err)
		}
		runID, err := p.store.StartRun(framestore.RunMeta{Topic: cfg.GetTopic(), Source: source, Options: opts})
		if err != nil {
			p.close()
			return nil, err
		}
		log.Printf("Frame store run %s in %s", runID, f.dbFile)
		sinks = append(sinks, p.store.Handler(runID))
	}
	if f.recordDir != "" {
		p.recorder, err = recorder.NewRecorder(f.recordDir, cfg.GetTopic())
		if err != nil {
			p.close()
			return nil, err
		}
		sinks = append(sinks, p.recorder)
	}

	p.rc, err = recon.New(recon.Config{
		Handler:     sinks,
		Topic:       cfg.GetTopic(),
		Accumulator: brightness.New(),
		Options:     opts,
	})
	if err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// handle is the ingest handler. It runs on the ingest goroutine only.
func (p *pipeline) handle(arr *codec.EventArray) error {
	if err := p.rc.ProcessBuffer(arr); err != nil {
		return err
	}
	n := p.rc.EventCount()
	p.stats.AddEvents(int64(n - p.events))
	p.events = n
	return nil
}

// close releases every sink and returns the first error any of them saw.
func (p *pipeline) close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.images != nil {
		keep(p.images.Err())
	}
	if p.store != nil {
		keep(p.store.Err())
		keep(p.store.Close())
	}
	if p.recorder != nil {
		keep(p.recorder.Close())
	}
	return firstErr
}

func run(ctx context.Context, f *cliFlags) error {
	if (f.pcapFile == "") == (f.listen == "") {
		return fmt.Errorf("exactly one of -pcap or -listen is required")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	source := f.pcapFile
	if source == "" {
		source = "udp://" + f.listen
	}
	p, err := newPipeline(f, cfg, source)
	if err != nil {
		return err
	}

	var ingestErr error
	if f.pcapFile != "" {
		statsCtx, cancelStats := context.WithCancel(ctx)
		go logStatsEvery(statsCtx, f.logInterval, p.stats)
		var n int
		n, ingestErr = ingest.ReadPCAPFile(ctx, f.pcapFile, f.udpPort, p.stats, p.handle)
		cancelStats()
		log.Printf("Replayed %d event arrays from %s", n, f.pcapFile)
	} else {
		l := ingest.NewUDPListener(ingest.UDPListenerConfig{
			Address:     f.listen,
			RcvBuf:      f.rcvBuf,
			LogInterval: f.logInterval,
			Stats:       p.stats,
			Handler:     p.handle,
		})
		ingestErr = l.Start(ctx)
		if errors.Is(ingestErr, context.Canceled) {
			ingestErr = nil
		}
	}

	p.stats.LogStats()
	log.Printf("Emitted %s frames from %s events",
		monitoring.FormatWithCommas(int64(p.counter.Frames())),
		monitoring.FormatWithCommas(int64(p.rc.EventCount())))

	closeErr := p.close()
	if ingestErr != nil {
		return ingestErr
	}
	return closeErr
}

func logStatsEvery(ctx context.Context, interval time.Duration, stats *monitoring.StreamStats) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats.LogStats()
		}
	}
}

func main() {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if f.showVersion {
		fmt.Println(version.String())
		return
	}

	if f.debug {
		recon.SetLogWriters(recon.LogWriters{Ops: os.Stderr, Diag: os.Stderr})
	} else {
		recon.SetLogWriters(recon.LogWriters{Ops: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		log.Fatalf("evrecon: %v", err)
	}
}
