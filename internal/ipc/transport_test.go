package ipc

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello frame")

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestWriteReadFrame_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(got))
	}
}

func TestReadFrame_CleanEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf)
	if err != io.EOF {
		t.Errorf("expected io.EOF on empty reader, got %v", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(lenBuf)

	_, err := ReadFrame(&buf)
	if err != ErrFrameTooLarge {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte("0123456789"))
	truncated := buf.Bytes()[:6] // length prefix plus a few payload bytes

	_, err := ReadFrame(bytes.NewReader(truncated))
	if err == nil {
		t.Error("expected an error reading a truncated payload")
	}
}
