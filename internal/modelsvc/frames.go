package modelsvc

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MiFaceDEV/facecore/internal/ipc"
)

// blankLuma returns a zeroed single-channel Mat, used only for the
// warm-up request.
func blankLuma(width, height int) gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	return mat
}

// decodeLuma converts a wire FramePayload into a single-channel gocv.Mat.
// The caller must Close the returned Mat.
func decodeLuma(fp *ipc.FramePayload) (gocv.Mat, error) {
	if fp == nil {
		return gocv.NewMat(), fmt.Errorf("modelsvc: missing luma_frame")
	}
	if fp.Channels != 1 {
		return gocv.NewMat(), fmt.Errorf("modelsvc: expected single-channel luma frame, got %d channels", fp.Channels)
	}
	mat, err := gocv.NewMatFromBytes(fp.Height, fp.Width, gocv.MatTypeCV8UC1, fp.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("modelsvc: decoding luma frame: %w", err)
	}
	return mat, nil
}

// decodeColor converts a wire FramePayload into a 3-channel gocv.Mat.
// The caller must Close the returned Mat.
func decodeColor(fp *ipc.FramePayload) (gocv.Mat, error) {
	if fp == nil {
		return gocv.NewMat(), fmt.Errorf("modelsvc: missing color_frame")
	}
	if fp.Channels != 3 {
		return gocv.NewMat(), fmt.Errorf("modelsvc: expected 3-channel color frame, got %d channels", fp.Channels)
	}
	mat, err := gocv.NewMatFromBytes(fp.Height, fp.Width, gocv.MatTypeCV8UC3, fp.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("modelsvc: decoding color frame: %w", err)
	}
	return mat, nil
}

func rectFromPayload(r *ipc.Rect) image.Rectangle {
	if r == nil {
		return image.Rectangle{}
	}
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func rectsToPayload(rects []image.Rectangle) []ipc.Rect {
	out := make([]ipc.Rect, len(rects))
	for i, r := range rects {
		out[i] = ipc.Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
	}
	return out
}

func pointsToPayload(points []image.Point) []ipc.Point {
	out := make([]ipc.Point, len(points))
	for i, p := range points {
		out[i] = ipc.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}
