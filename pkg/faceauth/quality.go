package faceauth

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QualityThresholds holds the Quality Gate's cutoffs (spec §4.4).
type QualityThresholds struct {
	Sharpness        float64 // default 100
	BrightnessMin    float64 // default 50
	BrightnessMax    float64 // default 200
	Contrast         float64 // default 30
	QuadrantVariance float64 // default 500
	ScoreThreshold   float64 // default 0.7
}

// DefaultQualityThresholds returns the spec's default cutoffs.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		Sharpness:        100,
		BrightnessMin:    50,
		BrightnessMax:    200,
		Contrast:         30,
		QuadrantVariance: 500,
		ScoreThreshold:   0.7,
	}
}

// QualityMetrics is the per-frame measurement set computed by the
// Quality Gate (spec §4.4).
type QualityMetrics struct {
	Sharpness        float64
	Brightness       float64
	Contrast         float64
	QuadrantVariance float64
	Score            float64
	Pass             bool
}

// frameDigest is a cheap key for the near-duplicate-frame LRU: mean,
// stddev and dimensions, not a full hash of pixel data (spec §4.4).
type frameDigest struct {
	mean, stddev  float64
	width, height int
}

// QualityGate filters frames before they reach the worker pool's face
// operations, per spec §4.4. The Frame Pipeline's workers share one Gate;
// its thresholds are read-only and its LRU cache is internally locked.
type QualityGate struct {
	thresholds QualityThresholds
	cache      *lru.Cache[frameDigest, QualityMetrics]
}

// NewQualityGate constructs a Gate with the given thresholds and a
// size-100 LRU cache keyed by a cheap frame digest (spec §4.4).
func NewQualityGate(thresholds QualityThresholds) (*QualityGate, error) {
	cache, err := lru.New[frameDigest, QualityMetrics](100)
	if err != nil {
		return nil, fmt.Errorf("faceauth: constructing quality gate cache: %w", err)
	}
	return &QualityGate{thresholds: thresholds, cache: cache}, nil
}

// Evaluate scores a luma buffer (row-major, width*height bytes) against
// the Quality Gate's four signals, reusing a cached score for a
// near-duplicate frame when present.
func (g *QualityGate) Evaluate(luma []byte, width, height int) QualityMetrics {
	mean, stddev := lumaMoments(luma)
	digest := frameDigest{mean: round2(mean), stddev: round2(stddev), width: width, height: height}

	if cached, ok := g.cache.Get(digest); ok {
		return cached
	}

	metrics := QualityMetrics{
		Sharpness:        laplacianVariance(luma, width, height),
		Brightness:       mean,
		Contrast:         stddev,
		QuadrantVariance: quadrantVariance(luma, width, height),
	}

	var sharpTerm, brightTerm, contrastTerm, uniformTerm float64
	if metrics.Sharpness > g.thresholds.Sharpness {
		sharpTerm = 1
	}
	if metrics.Brightness >= g.thresholds.BrightnessMin && metrics.Brightness <= g.thresholds.BrightnessMax {
		brightTerm = 1
	}
	if metrics.Contrast > g.thresholds.Contrast {
		contrastTerm = 1
	}
	if metrics.QuadrantVariance < g.thresholds.QuadrantVariance {
		uniformTerm = 1
	}

	metrics.Score = 0.30*sharpTerm + 0.25*brightTerm + 0.25*contrastTerm + 0.20*uniformTerm
	metrics.Pass = metrics.Score > g.thresholds.ScoreThreshold

	g.cache.Add(digest, metrics)
	return metrics
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// lumaMoments returns the mean and standard deviation of a luma buffer.
func lumaMoments(luma []byte) (mean, stddev float64) {
	if len(luma) == 0 {
		return 0, 0
	}
	var sum float64
	for _, b := range luma {
		sum += float64(b)
	}
	mean = sum / float64(len(luma))

	var sqDiff float64
	for _, b := range luma {
		d := float64(b) - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(len(luma)))
	return mean, stddev
}

// laplacianVariance approximates OpenCV's Laplacian-variance sharpness
// metric with a discrete 3x3 Laplacian kernel, avoiding a gocv.Mat
// round-trip for a scalar the caller only needs once.
func laplacianVariance(luma []byte, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}
	at := func(x, y int) float64 { return float64(luma[y*width+x]) }

	var responses []float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			lap := -4*at(x, y) + at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)
			responses = append(responses, lap)
		}
	}
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	for _, r := range responses {
		sum += r
	}
	mean := sum / float64(len(responses))
	var sqDiff float64
	for _, r := range responses {
		d := r - mean
		sqDiff += d * d
	}
	return sqDiff / float64(len(responses))
}

// quadrantVariance is the variance of mean-luma across the frame's four
// quadrants (spec §4.4's lighting-uniformity signal).
func quadrantVariance(luma []byte, width, height int) float64 {
	if width < 2 || height < 2 {
		return 0
	}
	halfW, halfH := width/2, height/2

	means := make([]float64, 4)
	counts := make([]int, 4)
	for y := 0; y < height; y++ {
		quadRow := 0
		if y >= halfH {
			quadRow = 2
		}
		for x := 0; x < width; x++ {
			quad := quadRow
			if x >= halfW {
				quad++
			}
			means[quad] += float64(luma[y*width+x])
			counts[quad]++
		}
	}
	for i := range means {
		if counts[i] > 0 {
			means[i] /= float64(counts[i])
		}
	}

	var sum float64
	for _, m := range means {
		sum += m
	}
	overall := sum / 4
	var sqDiff float64
	for _, m := range means {
		d := m - overall
		sqDiff += d * d
	}
	return sqDiff / 4
}
