//go:build cgo

package faceauth

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// fourccMJPEG is the FourCC code for the Motion JPEG codec, widely
	// supported by USB webcams and used here for maximum compatibility.
	fourccMJPEG = 0x47504A4D
)

// OpenCVCamera implements CameraSource using OpenCV via GoCV, grounded on
// the teacher's V4L2/MJPEG capture loop, generalized to emit luma
// alongside color (spec §3: "Frame: a pair (color, luma)").
type OpenCVCamera struct {
	mu sync.Mutex

	deviceID int
	width    int
	height   int
	fps      int

	webcam *gocv.VideoCapture
	opened bool
	seq    uint64
}

// NewOpenCVCamera returns an unopened OpenCVCamera.
func NewOpenCVCamera() *OpenCVCamera {
	return &OpenCVCamera{}
}

// Open initializes the camera with the V4L2 backend and MJPEG codec,
// matching the teacher's compatibility notes for USB webcams on Linux.
func (c *OpenCVCamera) Open(deviceID, width, height, fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return fmt.Errorf("faceauth: camera already opened")
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("faceauth: opening camera device %d: %w", deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("faceauth: camera device %d not found or unavailable", deviceID)
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	c.deviceID = deviceID
	c.width = int(webcam.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(webcam.Get(gocv.VideoCaptureFrameHeight))
	c.fps = int(webcam.Get(gocv.VideoCaptureFPS))
	c.webcam = webcam
	c.opened = true

	warmup := gocv.NewMat()
	c.webcam.Read(&warmup)
	warmup.Close()

	return nil
}

// Read captures a single frame and derives its luma channel, producing
// the (color, luma) pair required by spec §3.
func (c *OpenCVCamera) Read() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil, fmt.Errorf("faceauth: camera not opened")
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := c.webcam.Read(&mat); !ok {
		return nil, fmt.Errorf("faceauth: reading frame from camera")
	}
	if mat.Empty() {
		return nil, fmt.Errorf("faceauth: captured frame is empty")
	}

	luma := gocv.NewMat()
	defer luma.Close()
	gocv.CvtColor(mat, &luma, gocv.ColorBGRToGray)

	c.seq++
	return &Frame{
		Color:       mat.ToBytes(),
		Luma:        luma.ToBytes(),
		Width:       mat.Cols(),
		Height:      mat.Rows(),
		CaptureTime: time.Now(),
		SequenceNo:  c.seq,
	}, nil
}

// Close releases the underlying camera handle.
func (c *OpenCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil
	}
	err := c.webcam.Close()
	c.opened = false
	return err
}
