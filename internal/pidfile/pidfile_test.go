package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquire_WritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeld.pid")

	pf, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pf.Release()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	got, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatalf("parsing pid: %v", err)
	}
	if got != os.Getpid() {
		t.Errorf("got pid %d, want %d", got, os.Getpid())
	}
}

func TestAcquire_SecondHolderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeld.pid")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire (first): %v", err)
	}
	defer first.Release()

	if _, err := Acquire(path); err == nil {
		t.Error("expected a second Acquire on the same path to fail while the first is held")
	}
}

func TestRelease_RemovesFileAndAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeld.pid")

	pf, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := pf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed after Release")
	}

	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	second.Release()
}
