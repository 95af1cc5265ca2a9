package ipc

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func TestServer_PingRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "modeld.sock")

	srv, err := Listen(sock, func(req *Request) *Response {
		if req.Type != KindPing {
			return &Response{Error: "unknown"}
		}
		return &Response{Alive: true, ModelsLoaded: true}
	}, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	defer srv.Close()

	client := NewClient(sock)
	alive, loaded, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !alive || !loaded {
		t.Errorf("expected alive and loaded, got alive=%v loaded=%v", alive, loaded)
	}
}

func TestServer_OneRoundPerConnection(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "modeld.sock")
	calls := 0

	srv, err := Listen(sock, func(req *Request) *Response {
		calls++
		return &Response{Alive: true}
	}, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	defer srv.Close()

	conn, err := net.DialTimeout("unix", sock, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload, _ := EncodeRequest(&Request{Type: KindPing})
	WriteFrame(conn, payload)
	ReadFrame(conn)

	// A second request over the same connection must not be answered;
	// the server already returned after the first round.
	WriteFrame(conn, payload)
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = ReadFrame(conn)
	if err == nil {
		t.Error("expected no second response on a connection already served")
	}
}

func TestClient_ServiceUnavailable(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "does-not-exist.sock")
	client := NewClient(sock)

	_, _, err := client.Ping()
	if err == nil {
		t.Fatal("expected an error dialing a nonexistent socket")
	}
}

func TestServer_Close_RemovesSocketFile(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "modeld.sock")
	srv, err := Listen(sock, func(req *Request) *Response { return &Response{} }, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := net.DialTimeout("unix", sock, 100*time.Millisecond); err == nil {
		t.Error("expected dialing a closed, removed socket to fail")
	}
}
