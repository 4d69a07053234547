package memory

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// BudgetMonitor enforces an upper bound on live bytes. Pre events that would
// push the live byte count above the limit are rejected.
type BudgetMonitor struct {
	limit int64
	live  *atomic.Int64
}

// Create a monitor that allows at most limit live bytes.
func NewBudgetMonitor(limit int64) *BudgetMonitor {
	return &BudgetMonitor{
		limit: limit,
		live:  atomic.NewInt64(0),
	}
}

// Notify implements Monitor.
func (m *BudgetMonitor) Notify(delta int64, phase Phase) error {
	if phase != PreEvent || delta <= 0 {
		m.live.Add(delta)
		return nil
	}

	for {
		cur := m.live.Load()
		if cur+delta > m.limit {
			return errors.Wrapf(
				ErrOutOfMemory,
				"memory budget exceeded: %s live, %s requested, %s limit",
				humanize.IBytes(uint64(cur)), humanize.IBytes(uint64(delta)), humanize.IBytes(uint64(m.limit)),
			)
		}
		if m.live.CompareAndSwap(cur, cur+delta) {
			return nil
		}
	}
}

// Get the number of live bytes.
func (m *BudgetMonitor) Live() int64 {
	return m.live.Load()
}

// Get the byte limit.
func (m *BudgetMonitor) Limit() int64 {
	return m.limit
}

// CountingMonitor keeps running totals of monitor events.
type CountingMonitor struct {
	live     *atomic.Int64
	peak     *atomic.Int64
	allocs   *atomic.Int64
	releases *atomic.Int64
}

// Create a new counting monitor.
func NewCountingMonitor() *CountingMonitor {
	return &CountingMonitor{
		live:     atomic.NewInt64(0),
		peak:     atomic.NewInt64(0),
		allocs:   atomic.NewInt64(0),
		releases: atomic.NewInt64(0),
	}
}

// Notify implements Monitor.
func (m *CountingMonitor) Notify(delta int64, phase Phase) error {
	if phase == PreEvent {
		m.allocs.Inc()
	} else {
		m.releases.Inc()
	}

	live := m.live.Add(delta)
	for {
		peak := m.peak.Load()
		if live <= peak || m.peak.CompareAndSwap(peak, live) {
			break
		}
	}
	return nil
}

// Get the number of live bytes.
func (m *CountingMonitor) Live() int64 { return m.live.Load() }

// Get the highest live byte count observed.
func (m *CountingMonitor) Peak() int64 { return m.peak.Load() }

// Get the number of pre and post events seen so far.
func (m *CountingMonitor) Events() (pre, post int64) {
	return m.allocs.Load(), m.releases.Load()
}
