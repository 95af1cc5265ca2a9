package modelsvc

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/MiFaceDEV/facecore/internal/ipc"
)

func testService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(nil, dir, logger.WithField("component", "test")), dir
}

func writeEnrollment(t *testing.T, dir, username string, data [][]float64) {
	t.Helper()
	entries := []struct {
		Label string      `json:"label"`
		Time  int64       `json:"time"`
		Data  [][]float64 `json:"data"`
	}{{Label: "front", Time: 1000, Data: data}}
	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(dir, username+".json")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("writing enrollment fixture: %v", err)
	}
}

func TestHandleGetEncodings_NoEnrollment(t *testing.T) {
	s, _ := testService(t)

	resp := s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "ghost"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Encodings != nil {
		t.Errorf("expected nil encodings for a user with no enrollment file, got %+v", resp.Encodings)
	}
}

func TestHandleGetEncodings_LoadsAndCaches(t *testing.T) {
	s, dir := testService(t)
	writeEnrollment(t, dir, "alice", [][]float64{{0.1, 0.2, 0.3}})

	resp := s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "alice"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if resp.Encodings == nil || len(resp.Encodings.Vectors) != 1 {
		t.Fatalf("expected one enrollment vector, got %+v", resp.Encodings)
	}
	if s.stats.cacheMisses != 1 {
		t.Errorf("expected one cache miss on first load, got %d", s.stats.cacheMisses)
	}

	resp2 := s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "alice"})
	if resp2.Error != "" {
		t.Fatalf("unexpected error: %s", resp2.Error)
	}
	if s.stats.cacheHits != 1 {
		t.Errorf("expected one cache hit on second load, got %d", s.stats.cacheHits)
	}
}

func TestHandleGetEncodings_StaleMtimeReloads(t *testing.T) {
	s, dir := testService(t)
	writeEnrollment(t, dir, "bob", [][]float64{{0.1, 0.2}})
	s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "bob"})

	// Force a later mtime so the next access sees the file as stale.
	time.Sleep(10 * time.Millisecond)
	writeEnrollment(t, dir, "bob", [][]float64{{0.3, 0.4}, {0.5, 0.6}})

	resp := s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "bob"})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Encodings.Vectors) != 2 {
		t.Errorf("expected refreshed enrollment with 2 vectors, got %d", len(resp.Encodings.Vectors))
	}
	if s.stats.cacheMisses != 2 {
		t.Errorf("expected two cache misses (initial load + stale reload), got %d", s.stats.cacheMisses)
	}
}

func TestHandleInvalidate_RemovesCacheEntry(t *testing.T) {
	s, dir := testService(t)
	writeEnrollment(t, dir, "carol", [][]float64{{0.1}})
	s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "carol"})

	if _, ok := s.cache["carol"]; !ok {
		t.Fatal("expected carol to be cached before invalidation")
	}

	s.handleInvalidate(&ipc.Request{Type: ipc.KindInvalidate, Username: "carol"})

	if _, ok := s.cache["carol"]; ok {
		t.Error("expected invalidate to remove the cache entry")
	}
}

func TestHandleGetEncodings_DeletesStaleCacheOnRemoval(t *testing.T) {
	s, dir := testService(t)
	writeEnrollment(t, dir, "dave", [][]float64{{0.1}})
	s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "dave"})

	os.Remove(filepath.Join(dir, "dave.json"))

	resp := s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "dave"})
	if resp.Encodings != nil {
		t.Errorf("expected nil encodings after enrollment removal, got %+v", resp.Encodings)
	}
	if _, ok := s.cache["dave"]; ok {
		t.Error("expected cache entry to be dropped once the backing file is gone")
	}
}

func TestWatchLoop_InvalidatesOnWriteEvent(t *testing.T) {
	s, dir := testService(t)
	writeEnrollment(t, dir, "erin", [][]float64{{0.1}})
	s.handleGetEncodings(&ipc.Request{Type: ipc.KindGetEncodings, Username: "erin"})

	if _, ok := s.cache["erin"]; !ok {
		t.Fatal("expected erin cached before watch event")
	}

	s.handleWatchEvent(fsnotify.Event{
		Name: filepath.Join(dir, "erin.json"),
		Op:   fsnotify.Write,
	})

	if _, ok := s.cache["erin"]; ok {
		t.Error("expected watch event to invalidate the cache entry")
	}
}

func TestUsernameFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/var/lib/facecore/enroll/alice.json", "alice"},
		{"/var/lib/facecore/enroll/alice.json.tmp", ""},
		{"/var/lib/facecore/enroll/readme.txt", ""},
	}
	for _, tt := range tests {
		if got := usernameFromPath(tt.path); got != tt.want {
			t.Errorf("usernameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
