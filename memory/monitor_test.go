package memory

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChainCompensatesOnRejection(t *testing.T) {
	first := NewCountingMonitor()
	second := NewBudgetMonitor(100)
	third := &recordingMonitor{}

	mon := Chain(first, nil, second, third)

	if err := mon.Notify(80, PreEvent); err != nil {
		t.Fatal(err)
	}
	err := mon.Notify(40, PreEvent)
	if errors.Cause(err) != ErrOutOfMemory {
		t.Fatalf("expected budget rejection; got %v", err)
	}

	if first.Live() != 80 {
		t.Fatalf("expected first monitor to be compensated back to 80 bytes; got %d", first.Live())
	}
	if second.Live() != 80 {
		t.Fatalf("expected budget monitor to hold 80 bytes; got %d", second.Live())
	}
	if len(third.events) != 1 {
		t.Fatalf("expected rejected event not to reach the third monitor; got %v", third.events)
	}
}

func TestBudgetMonitor(t *testing.T) {
	mon := NewBudgetMonitor(1024)
	alloc := NewAllocator[[16]float32](mon)

	block, err := alloc.Allocate(16)
	if err != nil {
		t.Fatal(err)
	}

	_, err = alloc.Allocate(1)
	if errors.Cause(err) != ErrOutOfMemory {
		t.Fatalf("expected budget to be exhausted; got %v", err)
	}

	alloc.Deallocate(&block)
	if mon.Live() != 0 {
		t.Fatalf("expected 0 live bytes; got %d", mon.Live())
	}

	block, err = alloc.Allocate(16)
	if err != nil {
		t.Fatalf("expected allocation to succeed after release; got %v", err)
	}
	alloc.Deallocate(&block)
}

func TestPrometheusMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	mon, err := NewPrometheusMonitor(reg)
	if err != nil {
		t.Fatal(err)
	}
	alloc := NewAllocator[uint64](mon)

	block, err := alloc.Allocate(8)
	if err != nil {
		t.Fatal(err)
	}
	if v := testutil.ToFloat64(mon.liveBytes); v != 64 {
		t.Fatalf("expected live bytes gauge to be 64; got %f", v)
	}

	alloc.Deallocate(&block)
	if v := testutil.ToFloat64(mon.liveBytes); v != 0 {
		t.Fatalf("expected live bytes gauge to be 0; got %f", v)
	}
	if v := testutil.ToFloat64(mon.releaseBytes); v != 64 {
		t.Fatalf("expected released bytes counter to be 64; got %f", v)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("expected 5 registered metrics; got %d", count)
	}
}

func TestPrometheusMonitorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusMonitor(reg)
	if err != nil {
		t.Fatal(err)
	}
	if err = first.Notify(128, PreEvent); err != nil {
		t.Fatal(err)
	}

	second, err := NewPrometheusMonitor(reg)
	if err != nil {
		t.Fatalf("expected second monitor on the same registry to succeed; got %v", err)
	}
	if err = second.Notify(-128, PostEvent); err != nil {
		t.Fatal(err)
	}

	if v := testutil.ToFloat64(first.liveBytes); v != 0 {
		t.Fatalf("expected shared live bytes gauge to be 0; got %f", v)
	}
	if v := testutil.ToFloat64(second.allocBytes); v != 128 {
		t.Fatalf("expected shared allocated bytes counter to be 128; got %f", v)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("expected 5 registered metrics; got %d", count)
	}
}

func TestPrometheusMonitorRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtcore",
		Name:      "memory_bytes",
		Help:      "A conflicting metric with a different help string.",
	}))

	if _, err := NewPrometheusMonitor(reg); err == nil {
		t.Fatal("expected a registration error")
	}
}
