package faceauth

import "sync"

// distanceSmoother is a 1D Kalman filter applied to the running
// enrollment-distance signal, so a single noisy frame near the
// certainty boundary can't flip the match decision on its own.
// Smoothing factor close to 0 trusts the filter's running estimate over
// any one measurement; close to 1 tracks each measurement directly.
type distanceSmoother struct {
	mu sync.Mutex

	x           float64
	p           float64
	q           float64
	r           float64
	initialized bool
}

// newDistanceSmoother builds a smoother for the given smoothing factor
// in [0, 1].
func newDistanceSmoother(smoothingFactor float64) *distanceSmoother {
	return &distanceSmoother{
		p: 1.0,
		q: 0.1,
		r: 1.0 - smoothingFactor*0.9 + 0.1,
	}
}

// update folds in one distance measurement and returns the filtered
// value the Verifier should compare against the certainty threshold.
func (s *distanceSmoother) update(measurement float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.x = measurement
		s.initialized = true
		return measurement
	}

	pPred := s.p + s.q
	k := pPred / (pPred + s.r)
	s.x = s.x + k*(measurement-s.x)
	s.p = (1 - k) * pPred

	return s.x
}
