// Package journal implements the Security Journal (spec §4.7): an
// append-only, one-record-per-line attempt log plus in-memory lockout
// bookkeeping. Grounded on howdy/src/compare_optimized.py's
// failed_attempts map (original_source), rebuilt here as a mutex-guarded
// Go map with the teacher's config-driven file-handling idiom.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Kind enumerates the record kinds named by spec §4.7.
type Kind string

const (
	KindAuthAttempt  Kind = "AUTH_ATTEMPT"
	KindUserLocked   Kind = "USER_LOCKED"
	KindCameraError  Kind = "CAMERA_ERROR"
	KindServiceError Kind = "SERVICE_ERROR"
	KindSpoofDetect  Kind = "SPOOF_DETECTED"
	KindConfigWarn   Kind = "CONFIG_WARNING"
)

const (
	maxConsecutiveFailures = 5
	failureWindow          = 300 * time.Second
	lockoutDuration        = 300 * time.Second
)

// Record is a single append-only line of the journal. RecordID gives
// operators a stable handle for correlating one journal line with
// whatever the Verifier logged to stderr for the same attempt.
type Record struct {
	RecordID     string         `json:"record_id"`
	TimestampUTC string         `json:"timestamp_utc"`
	Kind         Kind           `json:"kind"`
	Username     string         `json:"username"`
	Success      bool           `json:"success"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type failureState struct {
	count       int
	lastFailure time.Time
}

// Journal owns process-wide lockout state and the append-only log file.
// Writes are serialized; lockout reads take the same mutex but hold it
// only long enough to inspect or garbage-collect one entry (spec §4.7).
type Journal struct {
	mu       sync.Mutex
	writer   *lumberjack.Logger
	failures map[string]*failureState
}

// Open creates (or appends to) the journal file at path, rotated by
// lumberjack.
func Open(path string) (*Journal, error) {
	return &Journal{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     90, // days
			Compress:   true,
		},
		failures: make(map[string]*failureState),
	}, nil
}

// Close flushes and closes the underlying log file.
func (j *Journal) Close() error {
	return j.writer.Close()
}

// Append writes a single record as one JSON line, then updates lockout
// bookkeeping for AUTH_ATTEMPT records per spec §4.7: success clears the
// counter, failure increments it, except for records whose metadata
// "outcome" is NO_ENROLLMENT or SERVICE_UNAVAILABLE, which are logged but
// not counted.
func (j *Journal) Append(r Record) error {
	if r.RecordID == "" {
		r.RecordID = uuid.New().String()
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshaling record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("journal: writing record: %w", err)
	}

	if r.Kind == KindAuthAttempt {
		outcome, _ := r.Metadata["outcome"].(string)
		if r.Success || (outcome != "NO_ENROLLMENT" && outcome != "SERVICE_UNAVAILABLE") {
			j.recordAttemptLocked(r.Username, r.Success)
		}
	}
	return nil
}

// recordAttemptLocked must be called with mu held.
func (j *Journal) recordAttemptLocked(username string, success bool) {
	if success {
		delete(j.failures, username)
		return
	}

	state, ok := j.failures[username]
	now := time.Now()
	if !ok || now.Sub(state.lastFailure) > failureWindow {
		j.failures[username] = &failureState{count: 1, lastFailure: now}
		return
	}
	state.count++
	state.lastFailure = now
}

// Locked reports whether username is currently locked out, garbage
// collecting the entry first if its last failure has aged out of the
// lockout window (spec §4.7).
func (j *Journal) Locked(username string) (locked bool, remaining time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, ok := j.failures[username]
	if !ok {
		return false, 0
	}

	elapsed := time.Since(state.lastFailure)
	if elapsed >= lockoutDuration {
		delete(j.failures, username)
		return false, 0
	}
	if state.count < maxConsecutiveFailures {
		return false, 0
	}
	return true, lockoutDuration - elapsed
}

// RecordAuthAttempt is a convenience wrapper that appends an AUTH_ATTEMPT
// record; the resulting lockout state is read separately with Locked.
func (j *Journal) RecordAuthAttempt(username string, success bool, metadata map[string]any) error {
	return j.Append(Record{
		TimestampUTC: nowUTC(),
		Kind:         KindAuthAttempt,
		Username:     username,
		Success:      success,
		Metadata:     metadata,
	})
}

// RecordEvent logs a non-attempt record (USER_LOCKED, CAMERA_ERROR,
// SERVICE_ERROR, SPOOF_DETECTED, CONFIG_WARNING); these never affect the
// lockout counter themselves.
func (j *Journal) RecordEvent(kind Kind, username string, metadata map[string]any) error {
	return j.Append(Record{
		TimestampUTC: nowUTC(),
		Kind:         kind,
		Username:     username,
		Success:      false,
		Metadata:     metadata,
	})
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
