package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// A recording is the magic string followed by records of
// [unix nanos u64][payload size u32][CBOR frameRecord], little endian.
const recordingMagic = "LOOTFRM1"

const maxRecordSize = 256 << 20

type frameRecord struct {
	Num    uint64 `cbor:"num"`
	Width  int    `cbor:"w"`
	Height int    `cbor:"h"`
	Pix    []byte `cbor:"pix"`
}

func writeMagic(w io.Writer) error {
	_, err := io.WriteString(w, recordingMagic)
	return err
}

func readMagic(r io.Reader) error {
	header := make([]byte, len(recordingMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(header) != recordingMagic {
		return fmt.Errorf("unexpected recording magic %q", string(header))
	}
	return nil
}

// writeRecord appends one frame and returns the bytes written.
func writeRecord(w *bufio.Writer, f *types.Frame) (int, error) {
	payload, err := cbor.Marshal(frameRecord{
		Num:    f.FrameNum,
		Width:  f.Width,
		Height: f.Height,
		Pix:    f.Pix,
	})
	if err != nil {
		return 0, fmt.Errorf("encode frame: %w", err)
	}

	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, err
	}
	return len(header) + len(payload), nil
}

// readRecord returns io.EOF at a clean end of stream.
func readRecord(r io.Reader) (*types.Frame, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:12])
	if size == 0 || size > maxRecordSize {
		return nil, fmt.Errorf("invalid record size %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var rec frameRecord
	if err := cbor.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if rec.Width <= 0 || rec.Height <= 0 || len(rec.Pix) != 4*rec.Width*rec.Height {
		return nil, fmt.Errorf("frame %d: bad geometry %dx%d with %d bytes", rec.Num, rec.Width, rec.Height, len(rec.Pix))
	}
	return &types.Frame{
		Width:     rec.Width,
		Height:    rec.Height,
		Pix:       rec.Pix,
		Timestamp: time.Unix(0, ts),
		FrameNum:  rec.Num,
	}, nil
}
