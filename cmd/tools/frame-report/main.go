// Command frame-report charts the per-frame intensity statistics of a run
// stored by evrecon -db: an interactive HTML page and a static PNG.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/evrecon/internal/framestore"
)

// frameSeconds returns the frame stamps relative to the first frame.
func frameSeconds(rows []framestore.FrameRow) []float64 {
	xs := make([]float64, len(rows))
	for i, r := range rows {
		xs[i] = float64(r.StampNs-rows[0].StampNs) / 1e9
	}
	return xs
}

func renderHTML(w io.Writer, run framestore.Run, rows []framestore.FrameRow) error {
	xs := frameSeconds(rows)
	labels := make([]string, len(rows))
	mean := make([]opts.LineData, len(rows))
	std := make([]opts.LineData, len(rows))
	for i, r := range rows {
		labels[i] = fmt.Sprintf("%.3f", xs[i])
		mean[i] = opts.LineData{Value: r.Mean}
		std[i] = opts.LineData{Value: r.StdDev}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "evrecon frames", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Frame intensity, topic %s", run.Topic),
			Subtitle: fmt.Sprintf("run=%s frames=%d fps=%g cutoff=%d", run.ID, len(rows), run.FPS, run.CutoffNumEvents),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "intensity", Min: 0, Max: 255}),
	)
	line.SetXAxis(labels).
		AddSeries("mean", mean).
		AddSeries("stddev", std)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func renderPNG(path string, run framestore.Run, rows []framestore.FrameRow) error {
	xs := frameSeconds(rows)
	meanPts := make(plotter.XYs, len(rows))
	stdPts := make(plotter.XYs, len(rows))
	for i, r := range rows {
		meanPts[i] = plotter.XY{X: xs[i], Y: r.Mean}
		stdPts[i] = plotter.XY{X: xs[i], Y: r.StdDev}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame intensity (%s, %d frames)", run.Topic, len(rows))
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "intensity"
	p.Y.Min, p.Y.Max = 0, 255

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Width = vg.Points(1)
	meanLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

	stdLine, err := plotter.NewLine(stdPts)
	if err != nil {
		return err
	}
	stdLine.Width = vg.Points(1)
	stdLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}

	p.Add(meanLine, stdLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Add("stddev", stdLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func report(dbPath, runID, outDir string) (string, string, error) {
	store, err := framestore.Open(dbPath)
	if err != nil {
		return "", "", err
	}
	defer store.Close()

	var run framestore.Run
	if runID == "" {
		run, err = store.LatestRun()
		if err != nil {
			return "", "", fmt.Errorf("no runs in %s: %w", dbPath, err)
		}
	} else {
		runs, err := store.Runs()
		if err != nil {
			return "", "", err
		}
		for _, r := range runs {
			if r.ID == runID {
				run = r
			}
		}
		if run.ID == "" {
			return "", "", fmt.Errorf("run %s not found", runID)
		}
	}

	rows, err := store.Frames(run.ID, false)
	if err != nil {
		return "", "", err
	}
	if len(rows) == 0 {
		return "", "", fmt.Errorf("run %s has no frames", run.ID)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", err
	}
	htmlPath := filepath.Join(outDir, fmt.Sprintf("frames_%s.html", run.ID))
	pngPath := filepath.Join(outDir, fmt.Sprintf("frames_%s.png", run.ID))

	f, err := os.Create(htmlPath)
	if err != nil {
		return "", "", err
	}
	if err := renderHTML(f, run, rows); err != nil {
		f.Close()
		return "", "", err
	}
	if err := f.Close(); err != nil {
		return "", "", err
	}
	if err := renderPNG(pngPath, run, rows); err != nil {
		return "", "", err
	}
	return htmlPath, pngPath, nil
}

func main() {
	dbPath := flag.String("db", "frames.db", "frame store written by evrecon -db")
	runID := flag.String("run", "", "run ID (default: latest run)")
	outDir := flag.String("out", ".", "output directory")
	flag.Parse()

	htmlPath, pngPath, err := report(*dbPath, *runID, *outDir)
	if err != nil {
		log.Fatalf("frame-report: %v", err)
	}
	log.Printf("Wrote %s and %s", htmlPath, pngPath)
}
