package modelsvc

import (
	"github.com/MiFaceDEV/facecore/internal/ipc"
)

func (s *Service) handleDetectFaces(req *ipc.Request) *ipc.Response {
	luma, err := decodeLuma(req.LumaFrame)
	if err != nil {
		s.log.WithError(err).Debug("detect_faces: decoding frame")
		return &ipc.Response{Error: "encode_failed"}
	}
	defer luma.Close()

	s.mu.Lock()
	rects, err := s.models.DetectFaces(luma)
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("detect_faces failed")
		return &ipc.Response{Error: "encode_failed"}
	}
	return &ipc.Response{Faces: rectsToPayload(rects)}
}

func (s *Service) handleGetLandmarks(req *ipc.Request) *ipc.Response {
	color, err := decodeColor(req.ColorFrame)
	if err != nil {
		s.log.WithError(err).Debug("get_landmarks: decoding frame")
		return &ipc.Response{Error: "encode_failed"}
	}
	defer color.Close()

	bbox := rectFromPayload(req.BBox)

	s.mu.Lock()
	points, err := s.models.GetLandmarks(color, bbox)
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("get_landmarks failed")
		return &ipc.Response{Error: "encode_failed"}
	}
	return &ipc.Response{Landmarks: pointsToPayload(points)}
}

func (s *Service) handleGetFaceEncoding(req *ipc.Request) *ipc.Response {
	color, err := decodeColor(req.ColorFrame)
	if err != nil {
		s.log.WithError(err).Debug("get_face_encoding: decoding frame")
		return &ipc.Response{Error: "encode_failed"}
	}
	defer color.Close()

	bbox := rectFromPayload(req.BBox)

	s.mu.Lock()
	encoding, err := s.models.GetFaceEncoding(color, bbox)
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("get_face_encoding failed")
		return &ipc.Response{Error: "encode_failed"}
	}
	return &ipc.Response{Encoding: encoding}
}
