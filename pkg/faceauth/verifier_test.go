package faceauth

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MiFaceDEV/facecore/internal/ipc"
	"github.com/MiFaceDEV/facecore/internal/journal"
)

type fakeModelClient struct {
	reachable    bool
	encodings    *ipc.EncodingsPayload
	encodingsErr error
	descriptor   []float64
	bbox         Rect
	landmarks    []Point // nil uses the zero-value 68-point set
}

func (f *fakeModelClient) Reachable() bool { return f.reachable }

func (f *fakeModelClient) GetEncodings(username string) (*ipc.EncodingsPayload, error) {
	return f.encodings, f.encodingsErr
}

func (f *fakeModelClient) DetectFaces(luma []byte, width, height int) ([]Rect, error) {
	return []Rect{f.bbox}, nil
}

func (f *fakeModelClient) GetLandmarks(color []byte, width, height int, bbox Rect) ([]Point, error) {
	if f.landmarks != nil {
		return f.landmarks, nil
	}
	return make([]Point, 68), nil
}

func (f *fakeModelClient) GetFaceEncoding(color []byte, width, height int, bbox Rect) ([]float64, error) {
	return f.descriptor, nil
}

type fakeCamera struct {
	openErr error
	width   int
	height  int
	seq     uint64
}

func (c *fakeCamera) Open(deviceID, width, height, fps int) error {
	if c.openErr != nil {
		return c.openErr
	}
	if width == 0 {
		width = c.width
	}
	if height == 0 {
		height = c.height
	}
	c.width, c.height = width, height
	return nil
}

func (c *fakeCamera) Read() (*Frame, error) {
	time.Sleep(2 * time.Millisecond)
	c.seq++
	luma := make([]byte, c.width*c.height)
	for i := range luma {
		luma[i] = 200
	}
	return &Frame{
		Color:       make([]byte, c.width*c.height*3),
		Luma:        luma,
		Width:       c.width,
		Height:      c.height,
		CaptureTime: time.Now(),
		SequenceNo:  c.seq,
	}, nil
}

func (c *fakeCamera) Close() error { return nil }

func testJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, _ := testJournalAt(t)
	return j
}

func testJournalAt(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "security.log")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestVerifierRun_ServiceUnavailable(t *testing.T) {
	client := &fakeModelClient{reachable: false}
	v := NewVerifier(DefaultVerifierConfig(), client, testJournal(t), &fakeCamera{width: 4, height: 4}, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeServiceUnavailable {
		t.Errorf("expected OutcomeServiceUnavailable, got %v", outcome)
	}
}

func TestVerifierRun_Locked(t *testing.T) {
	j := testJournal(t)
	for i := 0; i < 5; i++ {
		if err := j.RecordAuthAttempt("alice", false, nil); err != nil {
			t.Fatalf("RecordAuthAttempt: %v", err)
		}
	}

	client := &fakeModelClient{reachable: true}
	v := NewVerifier(DefaultVerifierConfig(), client, j, &fakeCamera{width: 4, height: 4}, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeLocked {
		t.Errorf("expected OutcomeLocked, got %v", outcome)
	}
}

func TestVerifierRun_NoEnrollment(t *testing.T) {
	client := &fakeModelClient{reachable: true, encodings: &ipc.EncodingsPayload{}}
	v := NewVerifier(DefaultVerifierConfig(), client, testJournal(t), &fakeCamera{width: 4, height: 4}, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeNoEnrollment {
		t.Errorf("expected OutcomeNoEnrollment, got %v", outcome)
	}
}

func TestVerifierRun_EnrollmentFetchError(t *testing.T) {
	client := &fakeModelClient{reachable: true, encodingsErr: errors.New("boom")}
	v := NewVerifier(DefaultVerifierConfig(), client, testJournal(t), &fakeCamera{width: 4, height: 4}, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeServiceUnavailable {
		t.Errorf("expected OutcomeServiceUnavailable, got %v", outcome)
	}
}

func TestVerifierRun_CameraError(t *testing.T) {
	client := &fakeModelClient{reachable: true, encodings: &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}}}
	camera := &fakeCamera{openErr: errors.New("no such device")}
	v := NewVerifier(DefaultVerifierConfig(), client, testJournal(t), camera, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeCameraError {
		t.Errorf("expected OutcomeCameraError, got %v", outcome)
	}
}

func TestVerifierRun_SuccessWithLivenessDisabled(t *testing.T) {
	client := &fakeModelClient{
		reachable:  true,
		encodings:  &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}},
		descriptor: []float64{1, 2, 3},
		bbox:       Rect{X: 0, Y: 0, W: 4, H: 4},
	}
	camera := &fakeCamera{width: 4, height: 4}

	cfg := DefaultVerifierConfig()
	cfg.LivenessCheck = false
	cfg.EnableQualityFiltering = false
	cfg.Timeout = 3 * time.Second
	cfg.Workers = 2

	v := NewVerifier(cfg, client, testJournal(t), camera, nil, nil, testLog())

	outcome := v.Run("alice")
	if outcome != OutcomeSuccess {
		t.Fatalf("expected OutcomeSuccess, got %v", outcome)
	}
}

type fakeSnapshotWriter struct {
	calls    int
	username string
	outcome  Outcome
}

func (f *fakeSnapshotWriter) WriteSnapshot(username string, frame *Frame, outcome Outcome) error {
	f.calls++
	f.username = username
	f.outcome = outcome
	return nil
}

func TestVerifierRun_SuccessWritesSnapshotWhenConfigured(t *testing.T) {
	client := &fakeModelClient{
		reachable:  true,
		encodings:  &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}},
		descriptor: []float64{1, 2, 3},
		bbox:       Rect{X: 0, Y: 0, W: 4, H: 4},
	}
	camera := &fakeCamera{width: 4, height: 4}
	snapshots := &fakeSnapshotWriter{}

	cfg := DefaultVerifierConfig()
	cfg.LivenessCheck = false
	cfg.EnableQualityFiltering = false
	cfg.Timeout = 3 * time.Second
	cfg.Workers = 2
	cfg.SaveSuccessfulSnapshot = true

	v := NewVerifier(cfg, client, testJournal(t), camera, nil, snapshots, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeSuccess {
		t.Fatalf("expected OutcomeSuccess, got %v", outcome)
	}
	if snapshots.calls != 1 {
		t.Errorf("expected exactly one snapshot write, got %d", snapshots.calls)
	}
	if snapshots.outcome != OutcomeSuccess {
		t.Errorf("expected snapshot outcome OutcomeSuccess, got %v", snapshots.outcome)
	}
}

func TestVerifierRun_NoSnapshotWriteWhenNotConfigured(t *testing.T) {
	client := &fakeModelClient{
		reachable:  true,
		encodings:  &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}},
		descriptor: []float64{1, 2, 3},
		bbox:       Rect{X: 0, Y: 0, W: 4, H: 4},
	}
	camera := &fakeCamera{width: 4, height: 4}
	snapshots := &fakeSnapshotWriter{}

	cfg := DefaultVerifierConfig()
	cfg.LivenessCheck = false
	cfg.EnableQualityFiltering = false
	cfg.Timeout = 3 * time.Second
	cfg.Workers = 2
	// SaveSuccessfulSnapshot left false.

	v := NewVerifier(cfg, client, testJournal(t), camera, nil, snapshots, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeSuccess {
		t.Fatalf("expected OutcomeSuccess, got %v", outcome)
	}
	if snapshots.calls != 0 {
		t.Errorf("expected no snapshot write when save_successful is false, got %d", snapshots.calls)
	}
}

func TestVerifierRun_SpoofDetectedRecordsJournalEvent(t *testing.T) {
	// Nose tip centered in the bbox (ratio 0.5) so neither TURN_LEFT
	// (needs >0.65) nor TURN_RIGHT (needs <0.35) ever completes by luck;
	// every other landmark stays at the zero value, so BLINK and NOD never
	// see enough motion to complete either. Whichever challenge the rng
	// picks first, it can only time out.
	neutralLandmarks := make([]Point, 68)
	neutralLandmarks[idxNoseTip] = Point{X: 2, Y: 2}

	client := &fakeModelClient{
		reachable:  true,
		encodings:  &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}},
		descriptor: []float64{1, 2, 3},
		bbox:       Rect{X: 0, Y: 0, W: 4, H: 4},
		landmarks:  neutralLandmarks,
	}
	camera := &fakeCamera{width: 4, height: 4}
	j, path := testJournalAt(t)

	cfg := DefaultVerifierConfig()
	cfg.EnableQualityFiltering = false
	cfg.Timeout = 3 * time.Second
	cfg.Workers = 2
	cfg.ActiveChallenge = true
	cfg.FrequencyAnalysis = false
	cfg.ChallengeTimeout = time.Millisecond // expires between the first and second observation

	v := NewVerifier(cfg, client, j, camera, nil, nil, testLog())

	if outcome := v.Run("alice"); outcome != OutcomeSpoofDetected {
		t.Fatalf("expected OutcomeSpoofDetected, got %v", outcome)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading journal file: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"SPOOF_DETECTED"`) {
		t.Errorf("expected a SPOOF_DETECTED journal record, got:\n%s", data)
	}
}

func TestVerifierRun_TimeoutWhenNoMatchFound(t *testing.T) {
	client := &fakeModelClient{
		reachable:  true,
		encodings:  &ipc.EncodingsPayload{Vectors: [][]float64{{1, 2, 3}}},
		descriptor: []float64{100, 100, 100}, // far from enrollment, never passes certainty gate
		bbox:       Rect{X: 0, Y: 0, W: 4, H: 4},
	}
	camera := &fakeCamera{width: 4, height: 4}

	cfg := DefaultVerifierConfig()
	cfg.LivenessCheck = false
	cfg.EnableQualityFiltering = false
	cfg.Timeout = 300 * time.Millisecond
	cfg.Workers = 2

	v := NewVerifier(cfg, client, testJournal(t), camera, nil, nil, testLog())

	outcome := v.Run("alice")
	if outcome != OutcomeTimeout {
		t.Fatalf("expected OutcomeTimeout, got %v", outcome)
	}
}
