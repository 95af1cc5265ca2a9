// Package vision wraps the pretrained detector, landmark predictor and
// descriptor encoder models behind the Model Service (spec §4.1). It is
// the generalization of the teacher library's MediaPipe Holistic bridge:
// instead of one monolithic holistic model, three separate OpenCV
// dnn/cascade models are loaded and called individually, matching the
// spec's detect_faces / get_landmarks / get_face_encoding RPC split.
package vision

import (
	"fmt"
	"path/filepath"

	"gocv.io/x/gocv"
)

// DetectorVariant selects between the fast sliding-window detector and the
// higher-recall convolutional one (spec §4.1).
type DetectorVariant int

const (
	// DetectorHaar is the fast sliding-window (Haar cascade) variant.
	DetectorHaar DetectorVariant = iota
	// DetectorCNN is the higher-recall convolutional (SSD/dnn) variant.
	DetectorCNN
)

// Config selects model files and the detector variant.
type Config struct {
	// ModelsDir holds the model files, named by convention:
	//   haar_face.xml           - Haar cascade classifier
	//   ssd_face.prototxt       - Caffe SSD detector topology
	//   ssd_face.caffemodel     - Caffe SSD detector weights
	//   landmark5.onnx or landmark68.onnx - landmark regressor
	//   descriptor.onnx         - face descriptor encoder
	ModelsDir string
	// Variant picks the detector (spec §4.1, core.use_cnn).
	Variant DetectorVariant
	// LandmarkPoints is 5 or 68; determines which landmark model is
	// loaded and therefore the Liveness Engine's capability set
	// (spec §4.5).
	LandmarkPoints int
	// DescriptorDim is the expected descriptor vector length (spec §3,
	// typically 128).
	DescriptorDim int
}

// DefaultConfig returns sensible defaults for a standard install.
func DefaultConfig(modelsDir string) Config {
	return Config{
		ModelsDir:      modelsDir,
		Variant:        DetectorHaar,
		LandmarkPoints: 68,
		DescriptorDim:  128,
	}
}

// Models holds the loaded detector, landmarker and descriptor encoder.
// All model calls are expected to be serialized by the caller (the Model
// Service's reentrant mutex, spec §4.1) regardless of whether the
// underlying OpenCV model happens to be thread-safe.
type Models struct {
	cfg Config

	cascade       gocv.CascadeClassifier
	haarLoaded    bool
	ssdNet        gocv.Net
	ssdLoaded     bool
	landmarkNet   gocv.Net
	descriptorNet gocv.Net
}

// Load synchronously loads all three models. Startup is synchronous and
// fails loudly: if any model file is missing or fails to load, the caller
// (cmd/modeld) exits non-zero before accepting connections (spec §4.1).
func Load(cfg Config) (*Models, error) {
	m := &Models{cfg: cfg}

	switch cfg.Variant {
	case DetectorHaar:
		m.cascade = gocv.NewCascadeClassifier()
		path := filepath.Join(cfg.ModelsDir, "haar_face.xml")
		if !m.cascade.Load(path) {
			return nil, fmt.Errorf("vision: loading haar cascade %s", path)
		}
		m.haarLoaded = true
	case DetectorCNN:
		prototxt := filepath.Join(cfg.ModelsDir, "ssd_face.prototxt")
		caffeModel := filepath.Join(cfg.ModelsDir, "ssd_face.caffemodel")
		net, err := gocv.ReadNetFromCaffe(prototxt, caffeModel)
		if err != nil {
			return nil, fmt.Errorf("vision: loading ssd detector: %w", err)
		}
		if net.Empty() {
			return nil, fmt.Errorf("vision: ssd detector network is empty after load")
		}
		m.ssdNet = net
		m.ssdLoaded = true
	default:
		return nil, fmt.Errorf("vision: unknown detector variant %d", cfg.Variant)
	}

	landmarkFile := fmt.Sprintf("landmark%d.onnx", cfg.LandmarkPoints)
	landmarkPath := filepath.Join(cfg.ModelsDir, landmarkFile)
	landmarkNet, err := gocv.ReadNetFromONNX(landmarkPath)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("vision: loading landmark model %s: %w", landmarkPath, err)
	}
	if landmarkNet.Empty() {
		m.Close()
		return nil, fmt.Errorf("vision: landmark network is empty after load")
	}
	m.landmarkNet = landmarkNet

	descriptorPath := filepath.Join(cfg.ModelsDir, "descriptor.onnx")
	descriptorNet, err := gocv.ReadNetFromONNX(descriptorPath)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("vision: loading descriptor model %s: %w", descriptorPath, err)
	}
	if descriptorNet.Empty() {
		m.Close()
		return nil, fmt.Errorf("vision: descriptor network is empty after load")
	}
	m.descriptorNet = descriptorNet

	return m, nil
}

// LandmarkPoints reports how many landmark points this instance produces
// (5 or 68), which the Liveness Engine uses to decide its capability set.
func (m *Models) LandmarkPoints() int {
	return m.cfg.LandmarkPoints
}

// DescriptorDim reports the descriptor vector length.
func (m *Models) DescriptorDim() int {
	return m.cfg.DescriptorDim
}

// Close releases all underlying OpenCV resources.
func (m *Models) Close() error {
	if m.haarLoaded {
		m.cascade.Close()
	}
	if m.ssdLoaded {
		m.ssdNet.Close()
	}
	// landmarkNet/descriptorNet are zero-valued gocv.Net before a
	// successful Load call; gocv.Net.Close is safe on a zero value.
	m.landmarkNet.Close()
	m.descriptorNet.Close()
	return nil
}
