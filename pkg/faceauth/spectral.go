//go:build cgo

package faceauth

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// SpectralRatio extracts the face region from a luma frame, resizes it to
// a 128x128 chip, computes the 2D Fourier magnitude spectrum shifted to
// center, and returns the ratio of peak to mean magnitude outside a
// low-frequency disk of radius 15 (spec §4.5's passive spectral score,
// before the logistic mapping applied by SpectralScore).
func SpectralRatio(luma []byte, width, height int, bbox Rect) (float64, error) {
	full, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, luma)
	if err != nil {
		return 0, err
	}
	defer full.Close()

	region := full.Region(image.Rect(bbox.X, bbox.Y, bbox.X+bbox.W, bbox.Y+bbox.H))
	defer region.Close()

	chip := gocv.NewMat()
	defer chip.Close()
	gocv.Resize(region, &chip, image.Pt(spectralChipSize, spectralChipSize), 0, 0, gocv.InterpolationLinear)

	chipF := gocv.NewMat()
	defer chipF.Close()
	chip.ConvertTo(&chipF, gocv.MatTypeCV32F)

	complexPlanes := gocv.NewMat()
	defer complexPlanes.Close()
	gocv.Merge([]gocv.Mat{chipF, gocv.NewMatWithSize(chipF.Rows(), chipF.Cols(), gocv.MatTypeCV32F)}, &complexPlanes)

	dft := gocv.NewMat()
	defer dft.Close()
	gocv.DFT(complexPlanes, &dft, gocv.DftDefault)

	shifted := fftShift(dft)
	defer shifted.Close()

	planes := gocv.Split(shifted)
	defer planes[0].Close()
	defer planes[1].Close()

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(planes[0], planes[1], &magnitude)

	return peakToMeanOutsideDisk(magnitude, lowFrequencyRadius), nil
}

// fftShift reorders DFT quadrants so the zero-frequency component sits at
// the image center, the conventional layout for magnitude-spectrum
// analysis.
func fftShift(m gocv.Mat) gocv.Mat {
	rows, cols := m.Rows(), m.Cols()
	cx, cy := cols/2, rows/2

	out := gocv.NewMatWithSize(rows, cols, m.Type())

	quadrant := func(x, y, w, h int) gocv.Mat {
		return m.Region(image.Rect(x, y, x+w, y+h))
	}
	copyInto := func(src gocv.Mat, x, y int) {
		dst := out.Region(image.Rect(x, y, x+src.Cols(), y+src.Rows()))
		defer dst.Close()
		src.CopyTo(&dst)
	}

	topLeft := quadrant(0, 0, cx, cy)
	topRight := quadrant(cx, 0, cols-cx, cy)
	bottomLeft := quadrant(0, cy, cx, rows-cy)
	bottomRight := quadrant(cx, cy, cols-cx, rows-cy)
	defer topLeft.Close()
	defer topRight.Close()
	defer bottomLeft.Close()
	defer bottomRight.Close()

	copyInto(bottomRight, 0, 0)
	copyInto(bottomLeft, cx, 0)
	copyInto(topRight, 0, cy)
	copyInto(topLeft, cx, cy)

	return out
}

// peakToMeanOutsideDisk computes max(magnitude) / mean(magnitude) over
// pixels outside a disk of the given radius centered on the image, the
// signal spec §4.5 uses to flag screen/moiré artifacts.
func peakToMeanOutsideDisk(magnitude gocv.Mat, radius int) float64 {
	rows, cols := magnitude.Rows(), magnitude.Cols()
	cx, cy := float64(cols)/2, float64(rows)/2

	var peak, sum float64
	var count int
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if math.Sqrt(dx*dx+dy*dy) <= float64(radius) {
				continue
			}
			v := float64(magnitude.GetFloatAt(y, x))
			sum += v
			count++
			if v > peak {
				peak = v
			}
		}
	}
	if count == 0 || sum == 0 {
		return 0
	}
	mean := sum / float64(count)
	return peak / mean
}
