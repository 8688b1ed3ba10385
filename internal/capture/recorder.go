package capture

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

var (
	// ErrNotRecording is returned by Stop when no recording is active.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("already recording")
)

// Recorder writes captured frames to a recording file
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	frameCount   uint64
	dropped      uint64
	bytesWritten uint64
	startTime    time.Time
	frameChan    chan *types.Frame
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewRecorder creates a recorder that writes into basePath
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath:  basePath,
		frameChan: make(chan *types.Frame, 16),
	}
}

// Start opens a new timestamped recording under the base path.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}
	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create recording dir: %w", err)
	}

	filename := fmt.Sprintf("recording_%s.lfr", time.Now().Format("20060102_150405"))
	file, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := bufio.NewWriterSize(file, 1<<20)
	if err := writeMagic(w); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	r.file = file
	r.w = w
	r.filename = filename
	r.recording = true
	r.frameCount = 0
	r.dropped = 0
	r.bytesWritten = uint64(len(recordingMagic))
	r.startTime = time.Now()
	r.stopChan = make(chan struct{})

	// frames that raced the previous Stop
	for len(r.frameChan) > 0 {
		<-r.frameChan
	}

	r.wg.Add(1)
	go r.writeFrames(r.stopChan)

	log.Info("recording to %s", filename)
	return nil
}

// Stop stops recording and closes the file
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	flushErr := r.w.Flush()
	syncErr := r.file.Sync()
	closeErr := r.file.Close()
	r.file, r.w = nil, nil
	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return fmt.Errorf("failed to finish recording: %w", err)
	}
	log.Info("recording %s closed: %d frames, %d dropped", r.filename, r.frameCount, r.dropped)
	return nil
}

// SendFrame queues a frame for writing (non-blocking). The frame must not
// be modified afterwards.
func (r *Recorder) SendFrame(frame *types.Frame) bool {
	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()

	if !recording || frame == nil {
		return false
	}

	select {
	case r.frameChan <- frame:
		return true
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return false
	}
}

func (r *Recorder) writeFrames(stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case frame := <-r.frameChan:
			r.writeFrame(frame)
		case <-stop:
			for {
				select {
				case frame := <-r.frameChan:
					r.writeFrame(frame)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeFrame(frame *types.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}
	n, err := writeRecord(r.w, frame)
	if err != nil {
		log.Warn("frame %d not recorded: %v", frame.FrameNum, err)
		return
	}
	r.bytesWritten += uint64(n)
	r.frameCount++
}

// IsRecording reports whether frames are being written.
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Path returns the full path of the current or last recording.
func (r *Recorder) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.filename == "" {
		return ""
	}
	return filepath.Join(r.basePath, r.filename)
}

// Status returns the current recording status
func (r *Recorder) Status() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:     r.recording,
		Filename:      r.filename,
		FrameCount:    r.frameCount,
		DroppedFrames: r.dropped,
		BytesWritten:  r.bytesWritten,
		DurationMs:    duration.Milliseconds(),
		StartTime:     r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		return r.Stop()
	}
	return nil
}

// RecordingStatus describes the active or most recent recording.
type RecordingStatus struct {
	Recording     bool      `json:"recording"`
	Filename      string    `json:"filename"`
	FrameCount    uint64    `json:"frame_count"`
	DroppedFrames uint64    `json:"dropped_frames"`
	BytesWritten  uint64    `json:"bytes_written"`
	DurationMs    int64     `json:"duration_ms"`
	StartTime     time.Time `json:"start_time"`
}
