package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bridge's Prometheus instruments.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionsStarted   *prometheus.CounterVec
	FramesToDevice    prometheus.Counter
	FramesToProvider  prometheus.Counter
	ProviderErrors    *prometheus.CounterVec
	TranscodeFailures prometheus.Counter
	QuotaRejections   prometheus.Counter
}

// NewMetrics builds and registers the bridge instruments on reg.
// Tests pass a fresh registry; the daemon passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "wren_active_sessions",
			Help: "Number of device sessions currently bridged.",
		}),
		SessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wren_sessions_started_total",
			Help: "Sessions started, by voice provider.",
		}, []string{"provider"}),
		FramesToDevice: f.NewCounter(prometheus.CounterOpts{
			Name: "wren_frames_to_device_total",
			Help: "Encoded audio frames sent to devices.",
		}),
		FramesToProvider: f.NewCounter(prometheus.CounterOpts{
			Name: "wren_frames_to_provider_total",
			Help: "Device audio frames forwarded upstream.",
		}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wren_provider_errors_total",
			Help: "Upstream provider errors, by provider.",
		}, []string{"provider"}),
		TranscodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "wren_transcode_failures_total",
			Help: "Audio frames or assets that failed to transcode.",
		}),
		QuotaRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "wren_quota_rejections_total",
			Help: "Sessions refused because the usage quota was spent.",
		}),
	}
}
