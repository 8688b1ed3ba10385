package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

func testFrame(num uint64, fill byte) *types.Frame {
	f := types.NewFrame(6, 4)
	for i := range f.Pix {
		f.Pix[i] = fill
	}
	f.FrameNum = num
	f.Timestamp = time.Unix(1700000000, int64(num)*int64(time.Millisecond))
	return f
}

func record(t *testing.T, dir string, frames ...*types.Frame) string {
	t.Helper()
	rec := NewRecorder(dir)
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, f := range frames {
		// the queue is larger than any test batch
		if !rec.SendFrame(f) {
			t.Fatalf("frame %d dropped", f.FrameNum)
		}
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := rec.Status()
	if st.Recording || st.FrameCount != uint64(len(frames)) {
		t.Fatalf("unexpected status %+v", st)
	}
	return rec.Path()
}

func TestRecordAndReplay(t *testing.T) {
	path := record(t, t.TempDir(), testFrame(1, 10), testFrame(2, 20), testFrame(3, 30))

	src, err := OpenReplay(path, false)
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	defer src.Close()

	for i, want := range []byte{10, 20, 30} {
		f, err := src.Capture(context.Background())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Width != 6 || f.Height != 4 || f.Pix[0] != want || f.FrameNum != uint64(i+1) {
			t.Fatalf("frame %d mismatch: %dx%d pix=%d num=%d", i, f.Width, f.Height, f.Pix[0], f.FrameNum)
		}
		if !f.Timestamp.Equal(time.Unix(1700000000, int64(i+1)*int64(time.Millisecond))) {
			t.Fatalf("frame %d timestamp %v", i, f.Timestamp)
		}
	}

	_, err = src.Capture(context.Background())
	if !errors.Is(err, ErrEndOfRecording) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected end of recording, got %v", err)
	}
}

func TestReplayLoop(t *testing.T) {
	path := record(t, t.TempDir(), testFrame(1, 1), testFrame(2, 2))

	src, err := OpenReplay(path, true)
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	defer src.Close()

	var got []byte
	for range 5 {
		f, err := src.Capture(context.Background())
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		got = append(got, f.Pix[0])
	}
	if string(got) != string([]byte{1, 2, 1, 2, 1}) {
		t.Fatalf("loop order = %v", got)
	}
	if src.Served() != 5 {
		t.Fatalf("served = %d", src.Served())
	}
}

func TestReplayRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.lfr")
	if err := os.WriteFile(path, []byte("NOTAREC!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReplay(path, false); err == nil {
		t.Fatalf("expected magic error")
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	rec := NewRecorder(t.TempDir())
	if err := rec.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop = %v", err)
	}
	if rec.SendFrame(testFrame(1, 0)) {
		t.Fatalf("frame accepted while idle")
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := Open("webcam", 0, "", false); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFuncSource(t *testing.T) {
	src := Func(func(context.Context) (*types.Frame, error) { return nil, ErrUnavailable })
	if _, err := src.Capture(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Capture = %v", err)
	}
}
