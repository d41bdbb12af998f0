package framesink

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recon"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type encodeFunc func(w io.Writer, m image.Image) error

var encoders = map[string]encodeFunc{
	"png": png.Encode,
	"bmp": bmp.Encode,
	"tiff": func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	},
}

// ImageWriter writes each frame to dir/<topic>/frame_<seq>_<stamp>.<ext>.
// Write failures are logged and the first one is kept for Err.
type ImageWriter struct {
	dir    string
	format string
	encode encodeFunc

	mu      sync.Mutex
	written int
	err     error
}

// NewImageWriter creates dir if needed. format is png, bmp or tiff.
func NewImageWriter(dir, format string) (*ImageWriter, error) {
	format = strings.ToLower(format)
	encode, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &ImageWriter{dir: dir, format: format, encode: encode}, nil
}

// Frame implements recon.FrameHandler.
func (w *ImageWriter) Frame(f *recon.Frame, topic string) {
	err := w.write(f, topic)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		monitoring.Logf("Failed to write frame %d: %v", f.Seq, err)
		if w.err == nil {
			w.err = err
		}
		return
	}
	w.written++
}

// Path returns the file path a frame is written to.
func (w *ImageWriter) Path(f *recon.Frame, topic string) string {
	name := fmt.Sprintf("frame_%06d_%d.%s", f.Seq, f.Header.StampNs, w.format)
	return filepath.Join(w.dir, topicDir(topic), name)
}

func (w *ImageWriter) write(f *recon.Frame, topic string) error {
	img, err := FrameImage(f)
	if err != nil {
		return err
	}
	path := w.Path(f, topic)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	if err := w.encode(bw, img); err != nil {
		out.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Written returns the number of frames written successfully.
func (w *ImageWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Err returns the first write error, if any.
func (w *ImageWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// FrameImage wraps a mono8 frame as an image.Gray without copying.
func FrameImage(f *recon.Frame) (*image.Gray, error) {
	if f.Encoding != recon.EncodingMono8 {
		return nil, fmt.Errorf("unsupported frame encoding %q", f.Encoding)
	}
	if f.Step < f.Width || uint64(len(f.Data)) < uint64(f.Step)*uint64(f.Height) {
		return nil, fmt.Errorf("frame data too short for %dx%d step %d", f.Width, f.Height, f.Step)
	}
	return &image.Gray{
		Pix:    f.Data,
		Stride: int(f.Step),
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}, nil
}

// topicDir maps a topic name to a single directory component. Characters
// other than ASCII letters, digits, dot, underscore and dash become one
// underscore per run; leading and trailing dots and underscores are trimmed.
func topicDir(topic string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range topic {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "frames"
	}
	return out
}
