package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// landmarkInputSize is the fixed square input size the landmark
// regressor expects its cropped face chip at.
const landmarkInputSize = 112

// GetLandmarks runs the landmark regressor against the face region of a
// color frame and returns a fixed-arity point set (5 or 68 points,
// spec §3) in frame coordinates.
func (m *Models) GetLandmarks(color gocv.Mat, bbox image.Rectangle) ([]image.Point, error) {
	if color.Empty() {
		return nil, fmt.Errorf("vision: get_landmarks: empty frame")
	}

	roi := color.Region(bbox)
	defer roi.Close()

	blob := gocv.BlobFromImage(roi, 1.0/255.0, image.Pt(landmarkInputSize, landmarkInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.landmarkNet.SetInput(blob, "")
	out := m.landmarkNet.Forward("")
	defer out.Close()

	n := m.cfg.LandmarkPoints
	flat := make([]float32, n*2)
	for i := 0; i < n*2; i++ {
		flat[i] = out.GetFloatAt(0, i)
	}

	points := make([]image.Point, n)
	for i := 0; i < n; i++ {
		// Regressor output is normalized to the ROI; map back to frame
		// coordinates.
		nx := float64(flat[i*2])
		ny := float64(flat[i*2+1])
		points[i] = image.Point{
			X: bbox.Min.X + int(nx*float64(bbox.Dx())),
			Y: bbox.Min.Y + int(ny*float64(bbox.Dy())),
		}
	}
	return points, nil
}
