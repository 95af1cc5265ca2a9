package modelsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MiFaceDEV/facecore/internal/ipc"
)

// counters are the cumulative stats named by spec §4.1's stats RPC.
// Protected by Service.mu.
type counters struct {
	requestsServed    uint64
	cacheHits         uint64
	cacheMisses       uint64
	startupDuration   time.Duration
	totalResponseTime time.Duration
}

func (s *Service) handleStats() *ipc.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mean float64
	if s.stats.requestsServed > 0 {
		mean = float64(s.stats.totalResponseTime.Milliseconds()) / float64(s.stats.requestsServed)
	}

	return &ipc.Response{Stats: &ipc.StatsPayload{
		RequestsServed:     s.stats.requestsServed,
		CacheHits:          s.stats.cacheHits,
		CacheMisses:        s.stats.cacheMisses,
		StartupDurationMs:  s.stats.startupDuration.Milliseconds(),
		MeanResponseTimeMs: mean,
	}}
}

// metricsSet mirrors the same counters into Prometheus gauges/histograms
// for the optional debug.end_report /metrics endpoint (SPEC_FULL §4.1).
// The RPC response above remains the source of truth; this is a read-only
// projection for operators, not a second ledger. Each Service owns its own
// registry rather than using the global default one, so constructing more
// than one Service in a process (as the tests do) never double-registers.
type metricsSet struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func newMetricsSet() *metricsSet {
	registry := prometheus.NewRegistry()
	m := &metricsSet{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facecore",
			Subsystem: "modelsvc",
			Name:      "request_duration_seconds",
			Help:      "Model Service request handling duration by request kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facecore",
			Subsystem: "modelsvc",
			Name:      "requests_total",
			Help:      "Model Service requests served by request kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(m.requestDuration, m.requestTotal)
	return m
}

// Registry exposes the Service's private Prometheus registry so cmd/modeld
// can mount it under /metrics alongside the stats RPC.
func (s *Service) Registry() *prometheus.Registry {
	return s.metrics.registry
}

func (m *metricsSet) observe(kind ipc.RequestKind, d time.Duration) {
	m.requestDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(string(kind)).Inc()
}
