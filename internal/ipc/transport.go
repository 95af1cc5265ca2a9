package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame to guard against a malformed or
// hostile length prefix forcing an unbounded allocation.
const maxFrameSize = 64 << 20 // 64 MiB, comfortably above one raw 1080p frame

// ErrFrameTooLarge is returned when a peer declares a frame length above
// maxFrameSize.
var ErrFrameTooLarge = errors.New("ipc: frame exceeds maximum size")

// WriteFrame writes payload as a single frame: a big-endian uint32 length
// prefix followed by exactly that many bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("ipc: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ipc: writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. Partial reads are retried
// (via io.ReadFull) until the declared length is satisfied. On a clean,
// premature close before any bytes of the next frame arrive, it returns
// (nil, io.EOF) so the caller can treat "no more frames" distinctly from
// a framing error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ipc: reading frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("ipc: reading frame payload (premature close): %w", err)
	}
	return payload, nil
}
