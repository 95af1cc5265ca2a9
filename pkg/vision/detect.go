package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ssdInputSize is the fixed input size the Caffe SSD face detector expects.
const ssdInputSize = 300

// ssdConfidenceThreshold discards low-confidence SSD detections before
// they ever reach the caller; spec §4.1 only promises an "ordered list of
// bounding rectangles", so filtering weak boxes here keeps that contract
// honest without inventing a new RPC field.
const ssdConfidenceThreshold = 0.5

// DetectFaces runs the configured detector variant against a single-
// channel luma frame and returns ordered bounding rectangles in frame
// coordinates. When the convolutional variant is in use, its rectangles
// are normalized to the plain rectangle shape before return (spec §4.1).
func (m *Models) DetectFaces(luma gocv.Mat) ([]image.Rectangle, error) {
	if luma.Empty() {
		return nil, fmt.Errorf("vision: detect_faces: empty frame")
	}

	switch m.cfg.Variant {
	case DetectorHaar:
		return m.detectHaar(luma)
	case DetectorCNN:
		return m.detectSSD(luma)
	default:
		return nil, fmt.Errorf("vision: detect_faces: unknown variant")
	}
}

func (m *Models) detectHaar(luma gocv.Mat) ([]image.Rectangle, error) {
	rects := m.cascade.DetectMultiScale(luma)
	return rects, nil
}

func (m *Models) detectSSD(luma gocv.Mat) ([]image.Rectangle, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(luma, &bgr, gocv.ColorGrayToBGR)

	blob := gocv.BlobFromImage(bgr, 1.0, image.Pt(ssdInputSize, ssdInputSize),
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	m.ssdNet.SetInput(blob, "")
	out := m.ssdNet.Forward("")
	defer out.Close()

	// SSD output is a [1, 1, N, 7] tensor; reshaped to [N, 7], each row
	// is [batchID, classID, confidence, x1, y1, x2, y2] in normalized
	// [0,1] coordinates.
	width := luma.Cols()
	height := luma.Rows()

	detections := out.Reshape(1, out.Total()/7)

	var rects []image.Rectangle
	for i := 0; i < detections.Rows(); i++ {
		confidence := detections.GetFloatAt(i, 2)
		if float64(confidence) < ssdConfidenceThreshold {
			continue
		}
		x1 := int(detections.GetFloatAt(i, 3) * float32(width))
		y1 := int(detections.GetFloatAt(i, 4) * float32(height))
		x2 := int(detections.GetFloatAt(i, 5) * float32(width))
		y2 := int(detections.GetFloatAt(i, 6) * float32(height))

		rect := image.Rect(x1, y1, x2, y2).Canon().Intersect(image.Rect(0, 0, width, height))
		if rect.Empty() {
			continue
		}
		rects = append(rects, rect)
	}
	return rects, nil
}
