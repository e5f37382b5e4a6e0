// Package metrics exposes Prometheus instrumentation for chain nodes.
//
// A nil *Collector is valid and records nothing, so nodes can call it
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "opchain"

// Outcome labels of FramesTotal.
const (
	OutcomeComposited = "composited"
	OutcomeBypassed   = "bypassed"
	OutcomeDropped    = "dropped"
	OutcomeForwarded  = "forwarded"
	OutcomeInferred   = "inferred"
)

// Collector holds the node metrics registered on one registry.
type Collector struct {
	FramesTotal     *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	CacheRecomputes *prometheus.CounterVec
	RecordedFrames  prometheus.Counter
	RecordedAudio   prometheus.Counter
	ActiveSessions  prometheus.Gauge
}

// New registers the collector metrics on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_total",
			Help:      "Total number of frames handled by a node, by outcome",
		}, []string{"node", "outcome"}),

		RenderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "render_duration_seconds",
			Help:      "CPU time spent encoding and submitting one render pass",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"node"}),

		CacheRecomputes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "coordinate_cache_recomputes_total",
			Help:      "Total number of letterbox coordinate buffers recomputed",
		}, []string{"node", "input"}),

		RecordedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recorded_frames_total",
			Help:      "Total number of video frames written by recorders",
		}),

		RecordedAudio: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recorded_audio_samples_total",
			Help:      "Total number of audio samples written by recorders",
		}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_recordings",
			Help:      "Number of recording sessions in progress",
		}),
	}
}

// Frame counts one frame handled by node with the given outcome.
func (c *Collector) Frame(node, outcome string) {
	if c == nil {
		return
	}
	c.FramesTotal.WithLabelValues(node, outcome).Inc()
}

// ObserveRender records the time spent preparing and submitting a pass.
func (c *Collector) ObserveRender(node string, d time.Duration) {
	if c == nil {
		return
	}
	c.RenderDuration.WithLabelValues(node).Observe(d.Seconds())
}

// CacheRecompute counts a coordinate buffer recomputation.
func (c *Collector) CacheRecompute(node, input string) {
	if c == nil {
		return
	}
	c.CacheRecomputes.WithLabelValues(node, input).Inc()
}

// RecordFrame counts a frame written by a recorder.
func (c *Collector) RecordFrame() {
	if c == nil {
		return
	}
	c.RecordedFrames.Inc()
}

// RecordAudio counts audio samples written by a recorder.
func (c *Collector) RecordAudio(samples int) {
	if c == nil {
		return
	}
	c.RecordedAudio.Add(float64(samples))
}

// SessionStarted increments the active recording gauge.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

// SessionFinished decrements the active recording gauge.
func (c *Collector) SessionFinished() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}
