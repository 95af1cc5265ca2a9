package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// descriptorInputSize is the fixed square input size the descriptor
// encoder expects its cropped, aligned face chip at.
const descriptorInputSize = 112

// GetFaceEncoding runs the descriptor encoder against the face region of
// a color frame and returns a fixed-length real vector (spec §3,
// typically 128-dim), comparable to enrollment descriptors via Euclidean
// distance.
func (m *Models) GetFaceEncoding(color gocv.Mat, bbox image.Rectangle) ([]float64, error) {
	if color.Empty() {
		return nil, fmt.Errorf("vision: get_face_encoding: empty frame")
	}

	roi := color.Region(bbox)
	defer roi.Close()

	blob := gocv.BlobFromImage(roi, 1.0/255.0, image.Pt(descriptorInputSize, descriptorInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.descriptorNet.SetInput(blob, "")
	out := m.descriptorNet.Forward("")
	defer out.Close()

	dim := m.cfg.DescriptorDim
	encoding := make([]float64, dim)
	for i := 0; i < dim; i++ {
		encoding[i] = float64(out.GetFloatAt(0, i))
	}
	return encoding, nil
}
