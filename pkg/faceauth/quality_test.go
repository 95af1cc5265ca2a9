package faceauth

import "testing"

func flatLuma(width, height int, value byte) []byte {
	buf := make([]byte, width*height)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

func TestQualityGate_FlatDarkFrameFails(t *testing.T) {
	gate, err := NewQualityGate(DefaultQualityThresholds())
	if err != nil {
		t.Fatalf("NewQualityGate: %v", err)
	}

	luma := flatLuma(32, 32, 10) // below brightness min, zero sharpness/contrast
	metrics := gate.Evaluate(luma, 32, 32)

	if metrics.Pass {
		t.Errorf("expected a flat, dark frame to fail the quality gate, got %+v", metrics)
	}
}

func TestQualityGate_NoisyWellLitFramePasses(t *testing.T) {
	gate, err := NewQualityGate(DefaultQualityThresholds())
	if err != nil {
		t.Fatalf("NewQualityGate: %v", err)
	}

	width, height := 32, 32
	luma := make([]byte, width*height)
	for i := range luma {
		// Checkerboard-ish pattern: high local contrast, mid brightness.
		if i%2 == 0 {
			luma[i] = 90
		} else {
			luma[i] = 170
		}
	}
	metrics := gate.Evaluate(luma, width, height)

	if !metrics.Pass {
		t.Errorf("expected a high-contrast, well-lit frame to pass, got %+v", metrics)
	}
}

func TestQualityGate_CachesByDigest(t *testing.T) {
	gate, err := NewQualityGate(DefaultQualityThresholds())
	if err != nil {
		t.Fatalf("NewQualityGate: %v", err)
	}

	luma := flatLuma(16, 16, 100)
	first := gate.Evaluate(luma, 16, 16)
	second := gate.Evaluate(luma, 16, 16)

	if first != second {
		t.Errorf("expected identical metrics for a repeated identical frame, got %+v vs %+v", first, second)
	}
	if gate.cache.Len() != 1 {
		t.Errorf("expected exactly one cache entry after evaluating the same digest twice, got %d", gate.cache.Len())
	}
}

func TestQualityGate_ScoreFormula(t *testing.T) {
	gate, err := NewQualityGate(DefaultQualityThresholds())
	if err != nil {
		t.Fatalf("NewQualityGate: %v", err)
	}

	luma := flatLuma(16, 16, 100) // brightness and uniformity pass, sharpness/contrast fail
	metrics := gate.Evaluate(luma, 16, 16)

	if metrics.Score != 0.45 {
		t.Errorf("expected score 0.45 (brightness 0.25 + uniformity 0.20), got %v", metrics.Score)
	}
}

func TestLumaMoments(t *testing.T) {
	luma := []byte{100, 100, 100, 100}
	mean, stddev := lumaMoments(luma)
	if mean != 100 {
		t.Errorf("expected mean 100, got %v", mean)
	}
	if stddev != 0 {
		t.Errorf("expected stddev 0 for a flat buffer, got %v", stddev)
	}
}

func TestQuadrantVariance_UniformIsZero(t *testing.T) {
	luma := flatLuma(8, 8, 128)
	if v := quadrantVariance(luma, 8, 8); v != 0 {
		t.Errorf("expected zero quadrant variance for a uniform frame, got %v", v)
	}
}
