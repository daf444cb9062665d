// Package metrics exports focus service metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/focus"
)

const namespace = "focus"

// Metrics holds the service collectors on a private registry.
// It implements session.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal     *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	fallbackFrames  prometheus.Counter
	invalidFrames   prometheus.Counter
	sessionsActive  prometheus.Gauge
	score           prometheus.Histogram
	processDuration prometheus.Histogram
}

// New creates and registers all collectors. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_processed_total",
				Help:      "Total number of frames processed, by attention state",
			},
			[]string{"state"},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Total number of frames dropped before processing",
			},
			[]string{"reason"}, // stale, clock_skew, out_of_order, rate_limited
		),
		fallbackFrames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_frames_total",
				Help:      "Frames analysed through a degraded detector path",
			},
		),
		invalidFrames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_frames_total",
				Help:      "Frames the detector could not decode or analyse",
			},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of currently active sessions",
			},
		),
		score: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "score",
				Help:      "Distribution of smoothed display scores",
				Buckets:   prometheus.LinearBuckets(10, 10, 9), // 10..90
			},
		),
		processDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "process_duration_seconds",
				Help:      "Time spent analysing one frame",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
	}

	m.registry.MustRegister(
		m.framesTotal,
		m.framesDropped,
		m.fallbackFrames,
		m.invalidFrames,
		m.sessionsActive,
		m.score,
		m.processDuration,
	)
	if withRuntime {
		m.registry.MustRegister(collectors.NewGoCollector())
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// Pre-create state series so dashboards see zeros.
	for _, s := range attention.States() {
		m.framesTotal.WithLabelValues(s.String())
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus or OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// FrameProcessed records one analysed frame.
func (m *Metrics) FrameProcessed(r focus.Result, elapsed time.Duration) {
	m.framesTotal.WithLabelValues(r.State.String()).Inc()
	m.score.Observe(r.Score)
	m.processDuration.Observe(elapsed.Seconds())
	if r.FallbackUsed {
		m.fallbackFrames.Inc()
	}
	if r.Error != "" {
		m.invalidFrames.Inc()
	}
}

// FrameDropped records a frame rejected by admission.
func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// SessionsActive sets the live session gauge.
func (m *Metrics) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}
