package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// ReplaySource serves frames from a recording in order. With loop set it
// rewinds at the end instead of reporting ErrEndOfRecording.
type ReplaySource struct {
	mu     sync.Mutex
	path   string
	loop   bool
	file   *os.File
	r      *bufio.Reader
	served uint64
}

// OpenReplay opens a recording written by Recorder.
func OpenReplay(path string, loop bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	r := bufio.NewReaderSize(f, 1<<20)
	if err := readMagic(r); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &ReplaySource{path: path, loop: loop, file: f, r: r}, nil
}

// Capture implements Source.
func (s *ReplaySource) Capture(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, ErrEndOfRecording
	}

	f, err := readRecord(s.r)
	if errors.Is(err, io.EOF) && s.loop && s.served > 0 {
		if err := s.rewind(); err != nil {
			return nil, err
		}
		f, err = readRecord(s.r)
	}
	if errors.Is(err, io.EOF) {
		return nil, ErrEndOfRecording
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.path, err)
	}
	s.served++
	return f, nil
}

func (s *ReplaySource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind recording: %w", err)
	}
	s.r.Reset(s.file)
	if err := readMagic(s.r); err != nil {
		return err
	}
	log.Debug("replay %s rewound after %d frames", s.path, s.served)
	return nil
}

// Served returns the number of frames returned so far.
func (s *ReplaySource) Served() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

// Close releases the file.
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
