package memory

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMonitor exports monitor events as prometheus metrics.
type PrometheusMonitor struct {
	liveBytes     prometheus.Gauge
	allocEvents   prometheus.Counter
	releaseEvents prometheus.Counter
	allocBytes    prometheus.Counter
	releaseBytes  prometheus.Counter
}

// Create a prometheus monitor and register its collectors with reg. A nil
// registerer creates unregistered collectors. Collectors already present in
// reg (for example from a monitor created earlier with the same registerer)
// are reused so the exported values keep accumulating.
func NewPrometheusMonitor(reg prometheus.Registerer) (*PrometheusMonitor, error) {
	m := &PrometheusMonitor{
		liveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcore",
			Name:      "memory_bytes",
			Help:      "Bytes currently held by monitored allocations.",
		}),
		allocEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Name:      "memory_allocations_total",
			Help:      "Number of monitored allocations.",
		}),
		releaseEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Name:      "memory_releases_total",
			Help:      "Number of monitored deallocations.",
		}),
		allocBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Name:      "memory_allocated_bytes_total",
			Help:      "Total bytes requested by monitored allocations.",
		}),
		releaseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcore",
			Name:      "memory_released_bytes_total",
			Help:      "Total bytes returned by monitored deallocations.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.liveBytes, err = register(reg, m.liveBytes); err != nil {
		return nil, err
	}
	for _, counter := range []*prometheus.Counter{&m.allocEvents, &m.releaseEvents, &m.allocBytes, &m.releaseBytes} {
		if *counter, err = register(reg, *counter); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register c with reg returning the collector that ended up registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, errors.Wrap(err, "memory: registering metrics")
}

// Notify implements Monitor.
func (m *PrometheusMonitor) Notify(delta int64, phase Phase) error {
	m.liveBytes.Add(float64(delta))
	switch {
	case delta >= 0:
		m.allocEvents.Inc()
		m.allocBytes.Add(float64(delta))
	default:
		m.releaseEvents.Inc()
		m.releaseBytes.Add(float64(-delta))
	}
	return nil
}
