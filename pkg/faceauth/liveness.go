package faceauth

import (
	"math"
	"math/rand"
	"time"
)

const (
	spoofScoreIncrement  = 0.2
	spoofScoreFailAt     = 0.5
	spectralRatioReject  = 0.15
	logisticCenter       = 3.5
	logisticSlope        = 2.0
	lowFrequencyRadius   = 15
	spectralChipSize     = 128

	earBlinkThreshold    = 0.25
	earOpenThreshold     = 0.30
	turnLeftRatio        = 0.65
	turnRightRatio       = 0.35
	nodRangePixels       = 15.0
	historySamples       = 5

	perChallengeDeadline = 3 * time.Second
	totalDeadline        = 8 * time.Second
	minElapsedForAccept  = 1500 * time.Millisecond
)

// SecurityLevel selects how many distinct challenges are required
// (spec §4.5: "medium requires 1 challenge; high requires 2").
type SecurityLevel int

const (
	SecurityMedium SecurityLevel = iota
	SecurityHigh
)

// LivenessConfig configures one Liveness Engine session (spec §4.5,
// driven by security.* configuration keys).
type LivenessConfig struct {
	ActiveChallenge   bool
	FrequencyAnalysis bool
	TemporalAnalysis  bool
	Level             SecurityLevel
	LandmarkPoints    int // 5 or 68; determines challenge capability set

	// ChallengeDeadline is security.challenge_timeout. Zero defaults to
	// perChallengeDeadline.
	ChallengeDeadline time.Duration
	// MoireThreshold is security.moire_threshold, the spectral-score cutoff
	// above which a frame adds to the spoof score. Zero defaults to
	// spectralRatioReject.
	MoireThreshold float64
	// MinConsistencyFrames is security.min_consistency_frames: how many
	// consecutive non-rejected frames must be seen (on top of
	// minElapsedForAccept) before TemporalAnalysis allows an accept.
	MinConsistencyFrames int
}

// LivenessEngine gates descriptor matches against spoofing (spec §4.5).
// Not safe for concurrent use; one instance per attempt.
type LivenessEngine struct {
	cfg LivenessConfig
	rng *rand.Rand

	startedAt          time.Time
	phase              LivenessPhase
	spoofScore         float64
	activeChallenge    Challenge
	challengeStartedAt time.Time
	completed          map[Challenge]bool
	remaining          []Challenge

	earHistory  []float64
	noseXHistory []float64
	noseYHistory []float64

	consistentFrames int
}

// NewLivenessEngine constructs an idle engine for one session. seed
// should vary per-session (e.g. time.Now().UnixNano()) so the first
// challenge isn't predictable.
func NewLivenessEngine(cfg LivenessConfig, seed int64) *LivenessEngine {
	if cfg.ChallengeDeadline <= 0 {
		cfg.ChallengeDeadline = perChallengeDeadline
	}
	if cfg.MoireThreshold <= 0 {
		cfg.MoireThreshold = spectralRatioReject
	}
	return &LivenessEngine{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		phase:     PhaseIdle,
		completed: make(map[Challenge]bool),
		remaining: []Challenge{ChallengeBlink, ChallengeTurnLeft, ChallengeTurnRight, ChallengeNod},
	}
}

// Phase reports the current state machine phase.
func (e *LivenessEngine) Phase() LivenessPhase { return e.phase }

// SpoofScore reports the cumulative passive spoof score, in [0, 1].
func (e *LivenessEngine) SpoofScore() float64 { return e.spoofScore }

// ActiveChallenge reports the challenge currently presented, valid only
// while Phase() == PhaseAwaitingAction.
func (e *LivenessEngine) ActiveChallenge() Challenge { return e.activeChallenge }

// requiredChallenges returns how many distinct challenges must complete
// for this session's security level.
func (e *LivenessEngine) requiredChallenges() int {
	if e.cfg.Level == SecurityHigh {
		return 2
	}
	return 1
}

// start transitions idle -> awaiting_action and picks the first
// challenge (spec §4.5 state machine).
func (e *LivenessEngine) start(now time.Time) {
	e.startedAt = now
	e.phase = PhaseAwaitingAction
	e.pickNextChallenge(now)
}

func (e *LivenessEngine) pickNextChallenge(now time.Time) {
	if len(e.remaining) == 0 {
		// Without-replacement pool exhausted; replenish with all four
		// challenges so a long session never stalls.
		e.remaining = []Challenge{ChallengeBlink, ChallengeTurnLeft, ChallengeTurnRight, ChallengeNod}
	}
	idx := e.rng.Intn(len(e.remaining))
	e.activeChallenge = e.remaining[idx]
	e.remaining = append(e.remaining[:idx], e.remaining[idx+1:]...)
	e.challengeStartedAt = now
}

// SpectralScore computes the passive spoof signal from a 128x128 luma
// chip's Fourier magnitude spectrum (spec §4.5). The caller (the
// gocv-backed wrapper in the Verifier) supplies the precomputed ratio of
// peak-to-mean magnitude outside a low-frequency disk of radius 15; this
// function only applies the logistic mapping, kept pure and gocv-free so
// it is directly testable without an OpenCV build.
func SpectralScore(peakToMeanRatio float64) float64 {
	return 1.0 / (1.0 + math.Exp(-logisticSlope*(peakToMeanRatio-logisticCenter)))
}

// ProcessFrame feeds one gated frame's landmarks into the engine and
// returns continue/accept/reject (spec §4.5 contract).
//
// spectralRatio is the peak-to-mean spectral ratio for this frame's face
// region (0 if frequency analysis is disabled or not yet computed).
func (e *LivenessEngine) ProcessFrame(now time.Time, landmarks []Point, bbox Rect, spectralRatio float64) LivenessVerdict {
	if e.phase == PhaseIdle {
		e.start(now)
	}
	if e.phase == PhaseFailed || e.phase == PhaseVerified {
		return e.verdictForPhase()
	}

	if e.cfg.FrequencyAnalysis {
		score := SpectralScore(spectralRatio)
		if score > e.cfg.MoireThreshold {
			e.spoofScore = math.Min(1.0, e.spoofScore+spoofScoreIncrement)
		}
		if e.spoofScore > spoofScoreFailAt {
			e.phase = PhaseFailed
			return LivenessReject
		}
	}

	if now.Sub(e.startedAt) > totalDeadline {
		e.phase = PhaseFailed
		return LivenessReject
	}

	e.consistentFrames++

	if e.cfg.ActiveChallenge {
		if now.Sub(e.challengeStartedAt) > e.cfg.ChallengeDeadline {
			e.phase = PhaseFailed
			return LivenessReject
		}
		if e.evaluateChallenge(landmarks, bbox) {
			e.completed[e.activeChallenge] = true
			if len(e.completed) >= e.requiredChallenges() {
				e.phase = PhaseVerified
			} else {
				e.pickNextChallenge(now)
			}
		}
	} else {
		// No active challenge configured: passive-only liveness.
		// Treated as satisfied immediately so spoof score and minimum
		// elapsed time remain the only gates.
		e.phase = PhaseVerified
	}

	if e.phase == PhaseVerified {
		if now.Sub(e.startedAt) < minElapsedForAccept {
			// Required completions reached too fast; hold at verified
			// phase but don't accept yet, matching the spec's elapsed
			// ≥ 1.5s accept condition.
			return LivenessContinue
		}
		if e.cfg.TemporalAnalysis && e.consistentFrames < e.cfg.MinConsistencyFrames {
			// Not enough consecutive non-rejected frames seen yet to
			// trust the match against a brief spoofed flash.
			return LivenessContinue
		}
		return LivenessAccept
	}
	return LivenessContinue
}

func (e *LivenessEngine) verdictForPhase() LivenessVerdict {
	switch e.phase {
	case PhaseFailed:
		return LivenessReject
	case PhaseVerified:
		return LivenessAccept
	default:
		return LivenessContinue
	}
}

// evaluateChallenge checks the active challenge against the landmark
// history, recording samples for challenges that need a short rolling
// window (spec §4.5).
func (e *LivenessEngine) evaluateChallenge(landmarks []Point, bbox Rect) bool {
	has68 := e.cfg.LandmarkPoints >= 68

	switch e.activeChallenge {
	case ChallengeBlink:
		ear, ok := eyeAspectRatio(landmarks, has68)
		if !ok {
			return false
		}
		e.earHistory = pushHistory(e.earHistory, ear, historySamples)
		if ear < earBlinkThreshold && maxOf(e.earHistory) > earOpenThreshold {
			return true
		}
		return false

	case ChallengeTurnLeft, ChallengeTurnRight:
		noseX, ok := noseXRatio(landmarks, bbox, has68)
		if !ok {
			return false
		}
		e.noseXHistory = pushHistory(e.noseXHistory, noseX, historySamples)
		if e.activeChallenge == ChallengeTurnLeft {
			return noseX > turnLeftRatio
		}
		return noseX < turnRightRatio

	case ChallengeNod:
		noseY, ok := noseYPixel(landmarks, has68)
		if !ok {
			return false
		}
		e.noseYHistory = pushHistory(e.noseYHistory, noseY, historySamples)
		if len(e.noseYHistory) < historySamples {
			return false
		}
		return (maxOf(e.noseYHistory) - minOf(e.noseYHistory)) > nodRangePixels

	default:
		return false
	}
}

func pushHistory(history []float64, v float64, maxLen int) []float64 {
	history = append(history, v)
	if len(history) > maxLen {
		history = history[len(history)-maxLen:]
	}
	return history
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// 68-point landmark indices follow the common iBUG 300-W convention:
// left eye 36-41, right eye 42-47, nose tip 30. With the 5-point model
// the challenge is still drawn from all four: BLINK never completes,
// since EAR needs the 68-point eye contours, while TURN_LEFT, TURN_RIGHT
// and NOD use the 5-point nose (index 2).
const (
	idxLeftEyeStart  = 36
	idxRightEyeStart = 42
	idxNoseTip       = 30
)

func eyeAspectRatio(landmarks []Point, has68 bool) (float64, bool) {
	if !has68 || len(landmarks) < 48 {
		return 0, false
	}
	leftEAR := singleEyeAspectRatio(landmarks[idxLeftEyeStart : idxLeftEyeStart+6])
	rightEAR := singleEyeAspectRatio(landmarks[idxRightEyeStart : idxRightEyeStart+6])
	return (leftEAR + rightEAR) / 2, true
}

// singleEyeAspectRatio computes EAR = (|p1-p5| + |p2-p4|) / (2*|p0-p3|)
// for a single 6-point eye contour (spec §4.5).
func singleEyeAspectRatio(eye []Point) float64 {
	vertical1 := dist(eye[1], eye[5])
	vertical2 := dist(eye[2], eye[4])
	horizontal := dist(eye[0], eye[3])
	if horizontal == 0 {
		return 0
	}
	return (vertical1 + vertical2) / (2 * horizontal)
}

func dist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func noseXRatio(landmarks []Point, bbox Rect, has68 bool) (float64, bool) {
	nose, ok := nosePoint(landmarks, has68)
	if !ok || bbox.W == 0 {
		return 0, false
	}
	return (nose.X - float64(bbox.X)) / float64(bbox.W), true
}

func noseYPixel(landmarks []Point, has68 bool) (float64, bool) {
	nose, ok := nosePoint(landmarks, has68)
	if !ok {
		return 0, false
	}
	return nose.Y, true
}

func nosePoint(landmarks []Point, has68 bool) (Point, bool) {
	if has68 && len(landmarks) > idxNoseTip {
		return landmarks[idxNoseTip], true
	}
	if len(landmarks) > 2 {
		// 5-point layout: eyes, nose, mouth corners; nose is index 2.
		return landmarks[2], true
	}
	return Point{}, false
}
