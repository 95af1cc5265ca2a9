package faceauth

import (
	"errors"
	"fmt"

	"github.com/MiFaceDEV/facecore/internal/ipc"
)

// ModelClient adapts internal/ipc.Client to the Detector interface the
// Frame Pipeline needs, plus the enrollment and lifecycle RPCs the
// Verifier calls directly (spec §4.1).
type ModelClient struct {
	client *ipc.Client
}

// NewModelClient wraps an already-constructed IPC client.
func NewModelClient(client *ipc.Client) *ModelClient {
	return &ModelClient{client: client}
}

// Reachable reports whether the Model Service answers a ping (spec §4.6
// step 1: "If the Model Service is not reachable -> SERVICE_UNAVAILABLE").
func (m *ModelClient) Reachable() bool {
	alive, _, err := m.client.Ping()
	return err == nil && alive
}

// GetEncodings fetches a user's enrollment matrix. A nil *ipc.EncodingsPayload
// with a nil error means "no enrollment exists" (spec §4.1).
func (m *ModelClient) GetEncodings(username string) (*ipc.EncodingsPayload, error) {
	resp, err := m.client.Call(&ipc.Request{Type: ipc.KindGetEncodings, Username: username})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ipc: get_encodings: %s", resp.Error)
	}
	return resp.Encodings, nil
}

func (m *ModelClient) DetectFaces(luma []byte, width, height int) ([]Rect, error) {
	resp, err := m.client.Call(&ipc.Request{
		Type:      ipc.KindDetectFaces,
		LumaFrame: &ipc.FramePayload{Width: width, Height: height, Channels: 1, Data: luma},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New("ipc: detect_faces: " + resp.Error)
	}
	out := make([]Rect, len(resp.Faces))
	for i, r := range resp.Faces {
		out[i] = Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
	}
	return out, nil
}

func (m *ModelClient) GetLandmarks(color []byte, width, height int, bbox Rect) ([]Point, error) {
	resp, err := m.client.Call(&ipc.Request{
		Type:       ipc.KindGetLandmarks,
		ColorFrame: &ipc.FramePayload{Width: width, Height: height, Channels: 3, Data: color},
		BBox:       &ipc.Rect{X: bbox.X, Y: bbox.Y, W: bbox.W, H: bbox.H},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New("ipc: get_landmarks: " + resp.Error)
	}
	out := make([]Point, len(resp.Landmarks))
	for i, p := range resp.Landmarks {
		out[i] = Point{X: p.X, Y: p.Y}
	}
	return out, nil
}

func (m *ModelClient) GetFaceEncoding(color []byte, width, height int, bbox Rect) ([]float64, error) {
	resp, err := m.client.Call(&ipc.Request{
		Type:       ipc.KindGetFaceEncoding,
		ColorFrame: &ipc.FramePayload{Width: width, Height: height, Channels: 3, Data: color},
		BBox:       &ipc.Rect{X: bbox.X, Y: bbox.Y, W: bbox.W, H: bbox.H},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New("ipc: get_face_encoding: " + resp.Error)
	}
	return resp.Encoding, nil
}
