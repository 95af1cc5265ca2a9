package faceauth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	inputQueueDepth   = 4
	resultQueueDepth  = 256 // effectively unbounded for one attempt's lifetime
	defaultWorkers    = 3
	slowThreshold     = 100 * time.Millisecond
	fastThreshold     = 30 * time.Millisecond
	resolutionFloor   = 0.5
	resolutionCeiling = 1.0
	skipStrideFloor   = 1
	skipStrideCeiling = 4
	shutdownGrace     = 2 * time.Second
)

// Detector is the subset of the Model Service client the pipeline needs
// per worker call (spec §4.3: "call detect_faces -> get_face_encoding for
// every detected box"). Landmarks are fetched too, since the Liveness
// Engine and the match decision both need them.
type Detector interface {
	DetectFaces(luma []byte, width, height int) ([]Rect, error)
	GetLandmarks(color []byte, width, height int, bbox Rect) ([]Point, error)
	GetFaceEncoding(color []byte, width, height int, bbox Rect) ([]float64, error)
}

// PipelineStats are the adaptive-control and backpressure counters spec
// §4.3 and §8 require to be observable.
type PipelineStats struct {
	FramesCaptured        uint64
	FramesSkippedAdaptive uint64
	FramesSkippedQuality  uint64
	ObservationsProduced  uint64
}

// FramePipeline is the bounded producer -> worker pool -> result queue
// described in spec §4.3.
type FramePipeline struct {
	detector Detector
	gate     *QualityGate
	quality  bool
	workers  int

	input  chan *Frame
	result chan FaceObservation

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats PipelineStats

	adaptMu         sync.Mutex
	adaptive        bool
	skipStride      int
	resolutionScale float64
	recentDurations []time.Duration
	frameCounter    uint64
}

// NewFramePipeline constructs a pipeline with the given worker count
// (clamped to spec §4.3's 2-4 range) and quality filtering toggle.
func NewFramePipeline(detector Detector, gate *QualityGate, enableQuality bool, workers int) *FramePipeline {
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}
	return &FramePipeline{
		detector:        detector,
		gate:            gate,
		quality:         enableQuality,
		workers:         workers,
		input:           make(chan *Frame, inputQueueDepth),
		result:          make(chan FaceObservation, resultQueueDepth),
		adaptive:        true,
		skipStride:      skipStrideFloor,
		resolutionScale: resolutionCeiling,
	}
}

// SetAdaptive toggles the skip-stride/resolution-scale controller
// (video.enable_adaptive_processing). When disabled, every frame is
// processed at full resolution with no skipping, regardless of worker
// latency.
func (p *FramePipeline) SetAdaptive(enabled bool) {
	p.adaptMu.Lock()
	defer p.adaptMu.Unlock()
	p.adaptive = enabled
	if !enabled {
		p.skipStride = skipStrideFloor
		p.resolutionScale = resolutionCeiling
	}
}

// Start launches the worker pool. Call once.
func (p *FramePipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// Stop signals the pipeline to drain and exit, bounded to shutdownGrace
// (spec §4.3: "Stop MUST be idempotent and bounded in time (≤2s)"). Safe
// to call more than once.
func (p *FramePipeline) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
	}
}

// Results returns the channel the Verifier drains face observations from.
func (p *FramePipeline) Results() <-chan FaceObservation {
	return p.result
}

// Stats returns a snapshot of the pipeline's counters.
func (p *FramePipeline) Stats() PipelineStats {
	return PipelineStats{
		FramesCaptured:        atomic.LoadUint64(&p.stats.FramesCaptured),
		FramesSkippedAdaptive: atomic.LoadUint64(&p.stats.FramesSkippedAdaptive),
		FramesSkippedQuality:  atomic.LoadUint64(&p.stats.FramesSkippedQuality),
		ObservationsProduced:  atomic.LoadUint64(&p.stats.ObservationsProduced),
	}
}

// SkipStride and ResolutionScale expose the adaptive controller's current
// settings (spec §8 invariant: skip_stride in [1,4], resolution_scale in
// [0.5, 1.0]).
func (p *FramePipeline) SkipStride() int {
	p.adaptMu.Lock()
	defer p.adaptMu.Unlock()
	return p.skipStride
}

func (p *FramePipeline) ResolutionScale() float64 {
	p.adaptMu.Lock()
	defer p.adaptMu.Unlock()
	return p.resolutionScale
}

// MeanLatency returns the rolling mean worker processing time the
// adaptive controller is currently tracking, for the debug.end_report
// summary.
func (p *FramePipeline) MeanLatency() time.Duration {
	p.adaptMu.Lock()
	defer p.adaptMu.Unlock()
	if len(p.recentDurations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range p.recentDurations {
		sum += d
	}
	return sum / time.Duration(len(p.recentDurations))
}

// Submit is called by the capture stage with a freshly read frame. It
// applies the adaptive skip stride, then attempts a non-blocking send;
// if the input queue is full the frame is dropped and counted, per
// spec §4.3's "freshness beats completeness" backpressure policy.
func (p *FramePipeline) Submit(frame *Frame) {
	atomic.AddUint64(&p.stats.FramesCaptured, 1)

	p.frameCounter++
	stride := p.SkipStride()
	if stride > 1 && p.frameCounter%uint64(stride) != 0 {
		return
	}

	select {
	case p.input <- frame:
	default:
		atomic.AddUint64(&p.stats.FramesSkippedAdaptive, 1)
	}
}

func (p *FramePipeline) workerLoop(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drainRemaining()
			return
		case frame, ok := <-p.input:
			if !ok {
				return
			}
			start := time.Now()
			p.processFrame(id, frame)
			p.recordDuration(time.Since(start))
		}
	}
}

// drainRemaining consumes whatever is already queued without blocking,
// so Stop's shutdown is bounded even under load (spec §4.3).
func (p *FramePipeline) drainRemaining() {
	for {
		select {
		case frame, ok := <-p.input:
			if !ok {
				return
			}
			p.processFrame(-1, frame)
		default:
			return
		}
	}
}

func (p *FramePipeline) processFrame(workerID int, frame *Frame) {
	if p.quality && p.gate != nil {
		metrics := p.gate.Evaluate(frame.Luma, frame.Width, frame.Height)
		if !metrics.Pass {
			atomic.AddUint64(&p.stats.FramesSkippedQuality, 1)
			return
		}
	}

	scale := p.ResolutionScale()
	detectLuma, detectWidth, detectHeight := frame.Luma, frame.Width, frame.Height
	if scale < resolutionCeiling {
		detectLuma, detectWidth, detectHeight = downscaleLuma(frame.Luma, frame.Width, frame.Height, scale)
	}

	boxes, err := p.detector.DetectFaces(detectLuma, detectWidth, detectHeight)
	if err != nil || len(boxes) == 0 {
		return
	}

	for _, bbox := range boxes {
		if scale < resolutionCeiling {
			bbox = upscaleRect(bbox, scale)
		}
		landmarks, err := p.detector.GetLandmarks(frame.Color, frame.Width, frame.Height, bbox)
		if err != nil {
			continue
		}
		descriptor, err := p.detector.GetFaceEncoding(frame.Color, frame.Width, frame.Height, bbox)
		if err != nil {
			continue
		}

		obs := FaceObservation{
			BBox:          bbox,
			Landmarks:     landmarks,
			Descriptor:    descriptor,
			SourceFrameID: frame.SequenceNo,
			WorkerID:      workerID,
			Frame:         frame,
		}

		select {
		case p.result <- obs:
			atomic.AddUint64(&p.stats.ObservationsProduced, 1)
		case <-p.ctx.Done():
			return
		}
	}
}

// downscaleLuma nearest-neighbor samples a luma buffer down to scale*width
// by scale*height, so the detector's sliding window runs over fewer pixels
// when the adaptive controller has backed off resolution (spec §4.3's
// "scales down resolution to a floor 0.5x"). Plain stdlib arithmetic: the
// buffer is a raw byte plane, not a gocv.Mat, and round-tripping it through
// gocv.Resize just to shrink it would couple this pure-Go, cgo-free file to
// the cgo build.
func downscaleLuma(luma []byte, width, height int, scale float64) (out []byte, outWidth, outHeight int) {
	outWidth = int(float64(width) * scale)
	outHeight = int(float64(height) * scale)
	if outWidth < 1 {
		outWidth = 1
	}
	if outHeight < 1 {
		outHeight = 1
	}
	out = make([]byte, outWidth*outHeight)
	for y := 0; y < outHeight; y++ {
		srcY := int(float64(y) / scale)
		if srcY >= height {
			srcY = height - 1
		}
		for x := 0; x < outWidth; x++ {
			srcX := int(float64(x) / scale)
			if srcX >= width {
				srcX = width - 1
			}
			out[y*outWidth+x] = luma[srcY*width+srcX]
		}
	}
	return out, outWidth, outHeight
}

// upscaleRect maps a bounding box found on a downscaled luma plane back to
// full-frame coordinates, so landmark/encoding calls (which always run
// against the full-resolution Color plane) see the right region.
func upscaleRect(bbox Rect, scale float64) Rect {
	return Rect{
		X: int(float64(bbox.X) / scale),
		Y: int(float64(bbox.Y) / scale),
		W: int(float64(bbox.W) / scale),
		H: int(float64(bbox.H) / scale),
	}
}

// recordDuration folds one worker's processing time into the rolling
// mean and applies at most one adaptation step (spec §4.3).
func (p *FramePipeline) recordDuration(d time.Duration) {
	p.adaptMu.Lock()
	defer p.adaptMu.Unlock()

	if !p.adaptive {
		return
	}

	p.recentDurations = append(p.recentDurations, d)
	if len(p.recentDurations) > 20 {
		p.recentDurations = p.recentDurations[len(p.recentDurations)-20:]
	}

	var sum time.Duration
	for _, v := range p.recentDurations {
		sum += v
	}
	mean := sum / time.Duration(len(p.recentDurations))

	switch {
	case mean > slowThreshold:
		if p.skipStride < skipStrideCeiling {
			p.skipStride++
		} else if p.resolutionScale > resolutionFloor {
			p.resolutionScale -= 0.25
			if p.resolutionScale < resolutionFloor {
				p.resolutionScale = resolutionFloor
			}
		}
	case mean < fastThreshold:
		if p.resolutionScale < resolutionCeiling {
			p.resolutionScale += 0.25
			if p.resolutionScale > resolutionCeiling {
				p.resolutionScale = resolutionCeiling
			}
		} else if p.skipStride > skipStrideFloor {
			p.skipStride--
		}
	}
}
