// Package modelsvc implements the Model Service (spec §4.1): it preloads
// the detector/landmarker/descriptor models once, owns the per-user
// enrollment cache, and answers vision RPCs over the IPC Transport.
package modelsvc

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/MiFaceDEV/facecore/internal/enrollment"
	"github.com/MiFaceDEV/facecore/internal/ipc"
	"github.com/MiFaceDEV/facecore/pkg/vision"
)

// Service is the long-lived Model Service. A single reentrant mutex
// protects both the model handles and the enrollment cache (spec §4.1);
// in Go this is a plain sync.Mutex plus call discipline (no handler calls
// back into another handler while holding it), which gives the same
// serialization guarantee a reentrant mutex gives in the source language.
type Service struct {
	mu     sync.Mutex
	models *vision.Models

	enrollmentDir string
	cache         map[string]*enrollment.CacheEntry

	stats   counters
	started time.Time

	watcher *fsnotify.Watcher
	log     *logrus.Entry

	metrics *metricsSet
}

// New constructs a Service around already-loaded models. Startup (model
// loading) happens before New is called, in cmd/modeld, so a load failure
// can exit the process non-zero before any socket is opened (spec §4.1).
func New(models *vision.Models, enrollmentDir string, log *logrus.Entry) *Service {
	return &Service{
		models:        models,
		enrollmentDir: enrollmentDir,
		cache:         make(map[string]*enrollment.CacheEntry),
		log:           log,
		metrics:       newMetricsSet(),
	}
}

// Start records the startup timestamp, runs the warm-up request, and
// starts the enrollment directory watcher. Call once before serving.
func (s *Service) Start(startedLoadingAt time.Time) error {
	s.mu.Lock()
	s.started = time.Now()
	s.stats.startupDuration = s.started.Sub(startedLoadingAt)
	s.mu.Unlock()

	s.warmup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.WithError(err).Warn("enrollment directory watcher unavailable, falling back to mtime-only invalidation")
		return nil
	}
	if err := watcher.Add(s.enrollmentDir); err != nil {
		s.log.WithError(err).Warn("watching enrollment directory")
		watcher.Close()
		return nil
	}
	s.watcher = watcher
	go s.watchLoop()
	return nil
}

// Close releases the watcher and the underlying models.
func (s *Service) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.models.Close()
}

// Handle dispatches a single decoded Request to its handler (spec §4.1).
// Unknown request kinds return {error: "unknown"}; per-request failures
// are caught and returned as a typed error object rather than propagated,
// so one bad request never takes the daemon down (spec §4.1, §7).
func (s *Service) Handle(req *ipc.Request) *ipc.Response {
	start := time.Now()
	resp := s.dispatch(req)
	s.mu.Lock()
	s.stats.requestsServed++
	s.stats.totalResponseTime += time.Since(start)
	s.mu.Unlock()
	s.metrics.observe(req.Type, time.Since(start))
	return resp
}

func (s *Service) dispatch(req *ipc.Request) *ipc.Response {
	switch req.Type {
	case ipc.KindPing:
		return s.handlePing()
	case ipc.KindGetEncodings:
		return s.handleGetEncodings(req)
	case ipc.KindDetectFaces:
		return s.handleDetectFaces(req)
	case ipc.KindGetLandmarks:
		return s.handleGetLandmarks(req)
	case ipc.KindGetFaceEncoding:
		return s.handleGetFaceEncoding(req)
	case ipc.KindInvalidate:
		return s.handleInvalidate(req)
	case ipc.KindStats:
		return s.handleStats()
	default:
		return &ipc.Response{Error: "unknown"}
	}
}

func (s *Service) handlePing() *ipc.Response {
	return &ipc.Response{Alive: true, ModelsLoaded: s.models != nil}
}

// warmup forces any lazy initialization inside the vision library (CUDA
// context, BLAS thread pools) before the service accepts real traffic,
// supplementing spec §4.1 per original_source/howdy/src/model_daemon.py.
func (s *Service) warmup() {
	blank := blankLuma(100, 100)
	defer blank.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.models.DetectFaces(blank); err != nil {
		s.log.WithError(err).Warn("warmup detect_faces failed (non-fatal)")
	}
}
