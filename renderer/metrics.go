package renderer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	frames    prometheus.Counter
	rays      prometheus.Counter
	hits      prometheus.Counter
	frameTime prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Subsystem: "renderer",
			Name:      "frames_total",
			Help:      "Number of rendered frames.",
		}),
		rays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Subsystem: "renderer",
			Name:      "rays_total",
			Help:      "Number of primary rays cast.",
		}),
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Subsystem: "renderer",
			Name:      "hits_total",
			Help:      "Number of primary rays that hit the scene.",
		}),
		frameTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rtcore",
			Subsystem: "renderer",
			Name:      "frame_seconds",
			Help:      "Time spent rendering a frame.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *metrics) observe(stats FrameStats) {
	m.frames.Inc()
	m.frameTime.Observe(stats.RenderTime.Seconds())
	for _, stat := range stats.Tracers {
		m.rays.Add(float64(stat.Rays))
		m.hits.Add(float64(stat.Hits))
	}
}
