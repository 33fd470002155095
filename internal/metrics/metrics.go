// Package metrics exposes Prometheus instrumentation for the capture core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the capture counters. One instance per process.
type Metrics struct {
	registry *prometheus.Registry

	FramesDelivered prometheus.Counter
	FramesDropped   prometheus.Counter
	RenderFailures  prometheus.Counter
	FramesEncoded   prometheus.Counter

	Reconfigurations *prometheus.CounterVec
	LensSwitches     *prometheus.CounterVec

	SessionRunning prometheus.Gauge
	Recording      prometheus.Gauge
}

// New creates the metric set on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinecam_frames_delivered_total",
			Help: "Frames delivered by the capture session.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinecam_frames_dropped_total",
			Help: "Frames dropped because the encoder was not ready.",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinecam_render_failures_total",
			Help: "Frames dropped because color grading failed.",
		}),
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinecam_frames_encoded_total",
			Help: "Frames handed to the encoder.",
		}),
		Reconfigurations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinecam_reconfigurations_total",
			Help: "Session reconfiguration transactions by result.",
		}, []string{"result"}),
		LensSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinecam_lens_switches_total",
			Help: "Lens switches by strategy.",
		}, []string{"strategy"}),
		SessionRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cinecam_session_running",
			Help: "1 while the capture session is running.",
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cinecam_recording",
			Help: "1 while a recording is in flight.",
		}),
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
