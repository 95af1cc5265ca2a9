package faceauth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/MiFaceDEV/facecore/internal/ipc"
	"github.com/MiFaceDEV/facecore/internal/journal"
)

// VerifierConfig holds the configuration keys the Verifier consumes
// (spec §6's core.*/video.*/security.* keys).
type VerifierConfig struct {
	UseCNN                   bool
	CameraDeviceID           int
	Timeout                  time.Duration // default 4s
	DarkThreshold            float64       // default 0.60
	CertaintyThreshold       float64       // default 0.35
	MaxHeight                int
	EnableQualityFiltering   bool
	EnableAdaptiveProcessing bool

	LivenessCheck        bool
	AdvancedLiveness     bool
	ActiveChallenge      bool
	FrequencyAnalysis    bool
	TemporalAnalysis     bool
	SecurityLevel        SecurityLevel
	ChallengeTimeout     time.Duration
	MoireThreshold       float64
	MinConsistencyFrames int

	SaveFailedSnapshot     bool
	SaveSuccessfulSnapshot bool
	EndReport              bool

	Workers int
}

// DefaultVerifierConfig returns the spec's named defaults.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Timeout:                  4 * time.Second,
		DarkThreshold:            0.60,
		CertaintyThreshold:       0.35,
		MaxHeight:                480,
		EnableQualityFiltering:   true,
		EnableAdaptiveProcessing: true,
		LivenessCheck:            true,
		AdvancedLiveness:         true,
		ActiveChallenge:          true,
		FrequencyAnalysis:        true,
		TemporalAnalysis:         true,
		SecurityLevel:            SecurityMedium,
		ChallengeTimeout:         3 * time.Second,
		MoireThreshold:           0.15,
		MinConsistencyFrames:     5,
		Workers:                  3,
	}
}

// enrollmentSet is the Verifier's in-memory view of one user's
// enrollment matrix (spec §3), fetched once per attempt.
type enrollmentSet struct {
	vectors [][]float64
}

func (e enrollmentSet) nearest(descriptor []float64) (distance float64, index int) {
	distance = -1
	for i, v := range e.vectors {
		d := floats.Distance(v, descriptor, 2)
		if distance < 0 || d < distance {
			distance = d
			index = i
		}
	}
	return distance, index
}

// modelAPI is the subset of ModelClient the Verifier calls directly, kept
// as an interface so tests can substitute a fake in place of a live IPC
// round trip. *ModelClient satisfies it.
type modelAPI interface {
	Detector
	Reachable() bool
	GetEncodings(username string) (*ipc.EncodingsPayload, error)
}

// Verifier drives one authentication attempt end to end (spec §4.6).
type Verifier struct {
	cfg       VerifierConfig
	client    modelAPI
	journal   *journal.Journal
	camera    CameraSource
	ui        *UIChannel
	snapshots SnapshotWriter
	log       *logrus.Entry
}

// NewVerifier constructs a Verifier for one attempt. camera and ui may
// be swapped for fakes in tests. snapshots may be nil, per
// SnapshotWriter's contract.
func NewVerifier(cfg VerifierConfig, client modelAPI, j *journal.Journal, camera CameraSource, ui *UIChannel, snapshots SnapshotWriter, log *logrus.Entry) *Verifier {
	if ui == nil {
		ui = NewUIChannel(nil)
	}
	return &Verifier{cfg: cfg, client: client, journal: j, camera: camera, ui: ui, snapshots: snapshots, log: log}
}

// Run executes the full sequence from spec §4.6 and returns the typed
// outcome. Every failure, expected or not, is folded into the Outcome;
// Run has no error return.
func (v *Verifier) Run(username string) Outcome {
	sessionStart := time.Now()

	if !v.client.Reachable() {
		v.recordEvent(journal.KindServiceError, username, nil)
		return OutcomeServiceUnavailable
	}

	if locked, remaining := v.journal.Locked(username); locked {
		v.recordEvent(journal.KindUserLocked, username, AttemptMetadata{"remaining_seconds": remaining.Seconds()})
		return OutcomeLocked
	}

	encodings, err := v.client.GetEncodings(username)
	if err != nil {
		v.recordEvent(journal.KindServiceError, username, AttemptMetadata{"error": err.Error()})
		v.recordAttempt(username, false, OutcomeServiceUnavailable, nil)
		return OutcomeServiceUnavailable
	}
	if encodings == nil || len(encodings.Vectors) == 0 {
		v.recordAttempt(username, false, OutcomeNoEnrollment, AttemptMetadata{"error": "no_face_model"})
		return OutcomeNoEnrollment
	}
	enrollment := enrollmentSet{vectors: encodings.Vectors}

	if err := v.camera.Open(v.cfg.CameraDeviceID, 0, v.cfg.MaxHeight, 30); err != nil {
		v.recordEvent(journal.KindCameraError, username, AttemptMetadata{"error": err.Error()})
		v.recordAttempt(username, false, OutcomeCameraError, nil)
		return OutcomeCameraError
	}
	defer v.camera.Close()

	gate, err := NewQualityGate(DefaultQualityThresholds())
	if err != nil {
		v.recordEvent(journal.KindServiceError, username, AttemptMetadata{"error": err.Error()})
		v.recordAttempt(username, false, OutcomeServiceUnavailable, nil)
		return OutcomeServiceUnavailable
	}

	pipeline := NewFramePipeline(v.client, gate, v.cfg.EnableQualityFiltering, v.cfg.Workers)
	pipeline.SetAdaptive(v.cfg.EnableAdaptiveProcessing)
	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.Timeout)
	defer cancel()
	pipeline.Start(ctx)
	defer pipeline.Stop()

	landmarkPoints := 5
	if v.cfg.AdvancedLiveness {
		landmarkPoints = 68
	}
	liveness := NewLivenessEngine(LivenessConfig{
		ActiveChallenge:      v.cfg.ActiveChallenge && v.cfg.LivenessCheck,
		FrequencyAnalysis:    v.cfg.FrequencyAnalysis && v.cfg.LivenessCheck,
		TemporalAnalysis:     v.cfg.TemporalAnalysis && v.cfg.LivenessCheck,
		Level:                v.cfg.SecurityLevel,
		LandmarkPoints:       landmarkPoints,
		ChallengeDeadline:    v.cfg.ChallengeTimeout,
		MoireThreshold:       v.cfg.MoireThreshold,
		MinConsistencyFrames: v.cfg.MinConsistencyFrames,
	}, sessionStart.UnixNano())

	go v.captureLoop(ctx, pipeline)

	outcome, nearestDistance, nearestIndex, allDark, decisiveFrame := v.driveSession(ctx, pipeline, enrollment, liveness)

	if outcome == OutcomeTimeout && allDark {
		outcome = OutcomeTooDark
	}

	v.ui.Main(outcomeMessage(outcome))

	if outcome == OutcomeSpoofDetected {
		v.recordEvent(journal.KindSpoofDetect, username, AttemptMetadata{"distance": nearestDistance})
	}

	metadata := AttemptMetadata{
		"frames_processed": pipeline.Stats().ObservationsProduced,
		"elapsed_ms":       time.Since(sessionStart).Milliseconds(),
	}
	if outcome == OutcomeSuccess {
		metadata["distance"] = nearestDistance
		metadata["enrollment_index"] = nearestIndex
	}
	v.recordAttempt(username, outcome == OutcomeSuccess, outcome, metadata)

	if v.cfg.EndReport {
		v.logEndReport(username, outcome, pipeline, liveness, sessionStart)
	}

	v.maybeWriteSnapshot(username, outcome, decisiveFrame)

	return outcome
}

// logEndReport logs the structured end-of-run summary gated on
// debug.end_report, supplementing the spec per
// original_source/performance_benchmark.py and demo_improvements.py's
// end-of-run timing report.
func (v *Verifier) logEndReport(username string, outcome Outcome, pipeline *FramePipeline, liveness *LivenessEngine, sessionStart time.Time) {
	stats := pipeline.Stats()
	v.log.WithFields(logrus.Fields{
		"username":                username,
		"outcome":                 outcome.String(),
		"elapsed":                 time.Since(sessionStart),
		"frames_captured":         stats.FramesCaptured,
		"frames_skipped_adaptive": stats.FramesSkippedAdaptive,
		"frames_skipped_quality":  stats.FramesSkippedQuality,
		"observations_produced":   stats.ObservationsProduced,
		"mean_worker_latency":     pipeline.MeanLatency(),
		"final_skip_stride":       pipeline.SkipStride(),
		"final_resolution_scale":  pipeline.ResolutionScale(),
		"liveness_phase":          liveness.Phase().String(),
	}).Info("attempt summary")
}

// maybeWriteSnapshot decides whether this attempt's outcome warrants an
// optional snapshot (spec §4.6 step 8, snapshots.save_failed/
// save_successful). Absence of a configured SnapshotWriter or of a
// decisive frame is non-fatal, matching the UI channel's optionality.
func (v *Verifier) maybeWriteSnapshot(username string, outcome Outcome, frame *Frame) {
	if v.snapshots == nil || frame == nil {
		return
	}
	wants := outcome == OutcomeSuccess && v.cfg.SaveSuccessfulSnapshot
	wants = wants || (outcome != OutcomeSuccess && v.cfg.SaveFailedSnapshot)
	if !wants {
		return
	}
	if err := v.snapshots.WriteSnapshot(username, frame, outcome); err != nil {
		v.log.WithError(err).Warn("writing snapshot")
	}
}

// captureLoop reads frames from the camera and submits them to the
// pipeline until ctx is cancelled (spec §5: "the capture thread blocks on
// camera read").
func (v *Verifier) captureLoop(ctx context.Context, pipeline *FramePipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := v.camera.Read()
		if err != nil {
			continue
		}
		pipeline.Submit(frame)
	}
}

// driveSession implements spec §4.6 step 5: drains the result queue,
// smooths each observation's nearest-enrollment distance, and gates
// candidate matches through the Liveness Engine. The returned distance and
// index are those of the decisive (accepted or rejected) observation; no
// running minimum is kept across observations, so on timeout both are
// zero.
func (v *Verifier) driveSession(ctx context.Context, pipeline *FramePipeline, enrollment enrollmentSet, liveness *LivenessEngine) (outcome Outcome, nearestDistance float64, nearestIndex int, allDark bool, decisiveFrame *Frame) {
	results := pipeline.Results()
	allDark = true
	sawAnyFrame := false
	smoother := newDistanceSmoother(0.5)

	for {
		select {
		case <-ctx.Done():
			return OutcomeTimeout, nearestDistance, nearestIndex, allDark && sawAnyFrame, nil
		case obs := <-results:
			sawAnyFrame = true
			if !isDark(obs.Frame.Luma, v.cfg.DarkThreshold) {
				allDark = false
			}

			rawDistance, index := enrollment.nearest(obs.Descriptor)
			distance := smoother.update(rawDistance)
			if distance >= v.cfg.CertaintyThreshold {
				continue
			}

			var spectralRatio float64
			if liveness.cfg.FrequencyAnalysis {
				spectralRatio = computeSpectralRatio(obs.Frame, obs.BBox)
			}
			v.ui.Subtitle(phaseMessage(liveness.Phase(), liveness.ActiveChallenge()))

			switch liveness.ProcessFrame(time.Now(), obs.Landmarks, obs.BBox, spectralRatio) {
			case LivenessAccept:
				return OutcomeSuccess, distance, index, false, obs.Frame
			case LivenessReject:
				return OutcomeSpoofDetected, distance, index, false, obs.Frame
			case LivenessContinue:
				continue
			}
		case <-time.After(100 * time.Millisecond):
			// Matches spec §5's "100ms timeout" poll interleaving; lets
			// the loop re-check ctx.Done promptly even under low frame
			// throughput.
		}
	}
}

// isDark reports whether a luma buffer has most of its mass in the
// darkest histogram bin (spec §8 boundary scenario 3).
func isDark(luma []byte, darkThreshold float64) bool {
	if len(luma) == 0 {
		return false
	}
	var dark int
	for _, b := range luma {
		if b < 32 { // bin 0 of an 8-bin [0,255] histogram
			dark++
		}
	}
	ratio := float64(dark) / float64(len(luma))
	return ratio > darkThreshold
}

// computeSpectralRatio calls SpectralRatio, whose implementation is chosen
// by build tag: the gocv.DFT-backed one in spectral.go under cgo, or the
// neutral stub in spectral_stub.go without it, which keeps the package
// buildable for pure-logic tests.
var computeSpectralRatio = func(frame *Frame, bbox Rect) float64 {
	ratio, err := SpectralRatio(frame.Luma, frame.Width, frame.Height, bbox)
	if err != nil {
		return 0
	}
	return ratio
}

func (v *Verifier) recordAttempt(username string, success bool, outcome Outcome, metadata AttemptMetadata) {
	if metadata == nil {
		metadata = AttemptMetadata{}
	}
	metadata["outcome"] = outcome.String()
	if err := v.journal.RecordAuthAttempt(username, success, metadata); err != nil {
		v.log.WithError(err).Warn("writing attempt record to security journal")
	}
}

func (v *Verifier) recordEvent(kind journal.Kind, username string, metadata AttemptMetadata) {
	if err := v.journal.RecordEvent(kind, username, metadata); err != nil {
		v.log.WithError(err).Warn("writing event record to security journal")
	}
}

