// Package pidfile writes and releases an exclusive-locked PID file for the
// Model Service daemon (spec §6: "PID file / lock").
package pidfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PIDFile represents a held, exclusively-locked PID file.
type PIDFile struct {
	path string
	file *os.File
}

// Acquire creates (or opens) the PID file at path, takes an exclusive
// advisory lock on it (flock LOCK_EX | LOCK_NB) and writes the current
// process id. It fails if another process already holds the lock.
func Acquire(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening pid file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking pid file %s: another instance is running: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating pid file %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing pid file %s: %w", path, err)
	}

	return &PIDFile{path: path, file: f}, nil
}

// Release unlocks, closes and removes the PID file. Called on clean
// SIGTERM/SIGINT shutdown of the Model Service.
func (p *PIDFile) Release() error {
	if p.file == nil {
		return nil
	}
	_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("closing pid file %s: %w", p.path, err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file %s: %w", p.path, err)
	}
	return nil
}
