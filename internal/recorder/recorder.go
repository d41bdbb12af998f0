// Package recorder records reconstructed frames to a chunked on-disk log
// and replays them with random access by index or timestamp.
//
// A log is a directory:
//
//	header.json           LogHeader
//	index.bin             IndexEntry records, little-endian, 24 bytes each
//	frames/chunk_NNNN.pb  length-prefixed frame records
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recon"
)

// FileExtension is the conventional extension of a frame log directory.
const FileExtension = ".evlog"

// ChunkSize is the maximum number of frames per chunk file.
const ChunkSize = 1000

// maxChunkBytes bounds a chunk file so every record offset fits the
// uint32 IndexEntry.Offset. A chunk is closed early when the next record
// would cross it.
var maxChunkBytes uint64 = math.MaxUint32

const formatVersion = "1.0"

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version     string `json:"version"`
	CreatedNs   int64  `json:"created_ns"`
	Topic       string `json:"topic"`
	FrameID     string `json:"frame_id"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	Seq         uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// Recorder writes frames to a log. It implements recon.FrameHandler;
// write errors from Frame are logged and the first is returned by Close.
type Recorder struct {
	basePath string

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    io.WriteCloser
	chunkOffset  uint32
	chunkFrames  int

	frameCount uint64
	err        error
	// failed is set by a chunk write error. The chunk may then hold a
	// partial record, so no further frames are accepted.
	failed error

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing to basePath. If basePath is empty
// a timestamped directory is created under the system temp dir.
func NewRecorder(basePath, topic string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("evlog_%d%s", time.Now().Unix(), FileExtension))
	}

	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Recorder{
		basePath:     basePath,
		currentChunk: -1,
		header: LogHeader{
			Version:   formatVersion,
			CreatedNs: time.Now().UnixNano(),
			Topic:     topic,
		},
	}, nil
}

// Frame implements recon.FrameHandler.
func (r *Recorder) Frame(f *recon.Frame, topic string) {
	if err := r.Record(f); err != nil {
		monitoring.Logf("recorder: %v", err)
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Record appends one frame to the log.
func (r *Recorder) Record(f *recon.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	if r.failed != nil {
		return fmt.Errorf("recorder failed: %w", r.failed)
	}

	data := serializeFrame(f)
	recLen := uint64(4 + len(data))
	if recLen > maxChunkBytes {
		return fmt.Errorf("frame %d is %d bytes, chunk limit is %d", f.Seq, recLen, maxChunkBytes)
	}

	if r.chunkFile == nil || r.chunkFrames >= ChunkSize || uint64(r.chunkOffset)+recLen > maxChunkBytes {
		if err := r.rotateChunk(r.currentChunk + 1); err != nil {
			return err
		}
	}

	buf := make([]byte, recLen)
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := r.chunkFile.Write(buf); err != nil {
		r.failed = err
		if r.err == nil {
			r.err = err
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		Seq:         f.Seq,
		TimestampNs: f.Header.StampNs,
		ChunkID:     uint32(r.currentChunk),
		Offset:      r.chunkOffset,
	})

	if r.frameCount == 0 {
		r.header.StartNs = f.Header.StampNs
		r.header.FrameID = f.Header.FrameID
		r.header.Width = f.Width
		r.header.Height = f.Height
	}
	r.header.EndNs = f.Header.StampNs

	r.chunkOffset += uint32(recLen)
	r.chunkFrames++
	r.frameCount++
	return nil
}

func chunkPath(basePath string, chunkIdx int) string {
	return filepath.Join(basePath, "frames", fmt.Sprintf("chunk_%04d.pb", chunkIdx))
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		err := r.chunkFile.Close()
		r.chunkFile = nil
		if err != nil {
			return err
		}
	}

	f, err := os.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	r.chunkFrames = 0
	return nil
}

// Close finalises the log and writes the header and index. It returns the
// first error from Frame, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil && r.err == nil {
			r.err = err
		}
	}

	r.header.TotalFrames = r.frameCount
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, "header.json"), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(r.basePath, "index.bin"))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := binary.Write(indexFile, binary.LittleEndian, r.index); err != nil {
		indexFile.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := indexFile.Close(); err != nil {
		return err
	}
	return r.err
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// Replayer reads frames back from a log.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry

	currentFrame uint64
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a log for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
	}

	headerData, err := os.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexData, err := os.ReadFile(filepath.Join(basePath, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	const entrySize = 24
	if len(indexData)%entrySize != 0 {
		return nil, fmt.Errorf("index size %d is not a multiple of %d", len(indexData), entrySize)
	}
	r.index = make([]IndexEntry, len(indexData)/entrySize)
	for i := range r.index {
		e := indexData[i*entrySize:]
		r.index[i] = IndexEntry{
			Seq:         binary.LittleEndian.Uint64(e[0:]),
			TimestampNs: int64(binary.LittleEndian.Uint64(e[8:])),
			ChunkID:     binary.LittleEndian.Uint32(e[16:]),
			Offset:      binary.LittleEndian.Uint32(e[20:]),
		}
	}
	if uint64(len(r.index)) != r.header.TotalFrames {
		return nil, fmt.Errorf("index has %d entries, header says %d", len(r.index), r.header.TotalFrames)
	}

	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalFrames returns the total number of frames in the log.
func (r *Replayer) TotalFrames() uint64 {
	return r.header.TotalFrames
}

// CurrentFrame returns the index of the next frame ReadFrame returns.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// Seek seeks to a specific frame by index.
func (r *Replayer) Seek(frameIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIdx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", frameIdx, len(r.index))
	}
	r.currentFrame = frameIdx
	return nil
}

// SeekToTimestamp seeks to the first frame stamped at or after
// timestampNs, or to the last frame if every frame is earlier.
func (r *Replayer) SeekToTimestamp(timestampNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("log is empty")
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampNs >= timestampNs
	})
	if i == len(r.index) {
		i = len(r.index) - 1
	}
	r.currentFrame = uint64(i)
	return nil
}

// ReadFrame reads the current frame and advances. It returns io.EOF after
// the last frame.
func (r *Replayer) ReadFrame() (*recon.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFrame >= uint64(len(r.index)) {
		return nil, io.EOF
	}
	entry := r.index[r.currentFrame]

	if int(entry.ChunkID) != r.currentChunk {
		data, err := os.ReadFile(chunkPath(r.basePath, int(entry.ChunkID)))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk: %w", err)
		}
		r.chunkData = data
		r.currentChunk = int(entry.ChunkID)
	}

	offset := uint64(entry.Offset)
	if offset+4 > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame offset")
	}
	frameLen := uint64(binary.LittleEndian.Uint32(r.chunkData[offset:]))
	offset += 4
	if offset+frameLen > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid frame length")
	}

	frame, err := deserializeFrame(r.chunkData[offset : offset+frameLen])
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize frame: %w", err)
	}

	r.currentFrame++
	return frame, nil
}

// Replay sends every remaining frame to h under the recorded topic.
func (r *Replayer) Replay(h recon.FrameHandler) (int, error) {
	n := 0
	for {
		f, err := r.ReadFrame()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		h.Frame(f, r.header.Topic)
		n++
	}
}
