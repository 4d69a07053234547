package memory

import "github.com/pkg/errors"

// The phase of a monitor event.
type Phase uint8

const (
	// Emitted before memory is committed. Monitors may reject the
	// allocation by returning an error.
	PreEvent Phase = iota

	// Emitted after memory has been released.
	PostEvent
)

func (p Phase) String() string {
	if p == PreEvent {
		return "pre"
	}
	return "post"
}

// The Monitor interface is implemented by memory pressure trackers. The
// allocator does not serialize calls; implementations must be safe for
// concurrent use.
type Monitor interface {
	// Notify the monitor about a signed byte delta. Returning an error
	// from a PreEvent notification aborts the pending allocation.
	Notify(delta int64, phase Phase) error
}

// An adapter that allows plain functions to be used as monitors.
type MonitorFunc func(delta int64, phase Phase) error

// Notify invokes f.
func (f MonitorFunc) Notify(delta int64, phase Phase) error {
	return f(delta, phase)
}

type nopMonitor struct{}

func (nopMonitor) Notify(int64, Phase) error { return nil }

// A monitor that accepts every event.
var NopMonitor Monitor = nopMonitor{}

type chain []Monitor

// Combine several monitors into one. Events are delivered in order. If a
// monitor rejects a pre event, monitors that already accepted it receive a
// compensating post event so their accounting stays balanced.
func Chain(monitors ...Monitor) Monitor {
	filtered := make(chain, 0, len(monitors))
	for _, m := range monitors {
		if m != nil {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func (c chain) Notify(delta int64, phase Phase) error {
	for idx, m := range c {
		err := m.Notify(delta, phase)
		if err == nil || phase != PreEvent {
			continue
		}

		for _, accepted := range c[:idx] {
			_ = accepted.Notify(-delta, PostEvent)
		}
		return errors.WithStack(err)
	}
	return nil
}
