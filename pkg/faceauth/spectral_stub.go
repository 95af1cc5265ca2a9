//go:build !cgo

package faceauth

// SpectralRatio is the non-cgo stand-in for the gocv-backed implementation
// in spectral.go. Builds without cgo (and therefore without a camera or
// DNN backend) cannot perform frequency-domain analysis, so frequency
// analysis degrades to a neutral ratio rather than failing the build.
func SpectralRatio(luma []byte, width, height int, bbox Rect) (float64, error) {
	return 0, nil
}
