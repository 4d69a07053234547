package rtcore

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"

	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/scene"
)

// An ErrorFunc receives every failure reported by a device entry point.
// It is invoked synchronously before the entry point returns.
type ErrorFunc func(code Code, msg string)

// A MemoryMonitorFunc receives the byte delta of every device allocation
// (positive) and release (negative). post is false for allocations, which
// are rejected when the function returns false.
type MemoryMonitorFunc func(bytes int64, post bool) bool

// Only one device may exist at any time.
var deviceActive = atomic.NewBool(false)

// Device is the runtime context owning scenes, error state and memory
// accounting. Entry points are safe for concurrent use.
type Device struct {
	logger log.Logger
	cfg    Config

	mu        sync.RWMutex
	lastErr   *Error
	errorFn   ErrorFunc
	memoryFn  MemoryMonitorFunc
	scenes    map[*scene.Scene]struct{}
	closed    bool
	liveBytes *memory.CountingMonitor
	monitor   memory.Monitor
}

// Create the device. Fails with InvalidOperation if another device is
// still open and with InvalidArgument or UnsupportedHardware if cfg is
// not usable.
func NewDevice(cfg Config) (d *Device, err error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !deviceActive.CompareAndSwap(false, true) {
		return nil, newError(InvalidOperation, "a device is already open")
	}
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, classifyPanic(r)
		}
		if err != nil {
			deviceActive.Store(false)
		}
	}()

	if cfg.Verbose > 0 {
		log.SetLevel(log.VerbosityLevel(cfg.Verbose))
	}

	d = &Device{
		logger:    log.New("rtcore"),
		cfg:       cfg,
		scenes:    make(map[*scene.Scene]struct{}),
		liveBytes: memory.NewCountingMonitor(),
	}

	// Without an explicit limit the budget is what the host can back so
	// oversized requests fail at the pre event instead of exhausting memory.
	limit := int64(cfg.MemoryLimit)
	if limit == 0 {
		limit = memory.HostLimit()
	}
	monitors := []memory.Monitor{d.liveBytes, memory.NewBudgetMonitor(limit)}
	if cfg.Registerer != nil {
		promMonitor, err := memory.NewPrometheusMonitor(cfg.Registerer)
		if err != nil {
			return nil, newError(InvalidArgument, "could not register memory metrics: %v", err)
		}
		monitors = append(monitors, promMonitor)
	}
	monitors = append(monitors, memory.MonitorFunc(d.notifyMemory))
	d.monitor = memory.Chain(monitors...)

	d.logger.Infof("device created (tri_accel: %s, hair_accel: %s, memory limit: %s)", cfg.TriAccel, cfg.HairAccel, limitString(cfg.MemoryLimit, limit))
	return d, nil
}

func limitString(configured ByteSize, effective int64) string {
	if configured == 0 {
		return "host (" + ByteSize(effective).String() + ")"
	}
	return configured.String()
}

// Close the device releasing every scene it still owns. A new device can be
// created afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.fail(newError(InvalidOperation, "device already closed"))
	}
	d.closed = true
	scenes := d.scenes
	d.scenes = nil
	d.mu.Unlock()

	for s := range scenes {
		s.Release()
	}
	deviceActive.Store(false)

	d.logger.Infof("device closed; %s still allocated", humanize.IBytes(uint64(max(d.liveBytes.Live(), 0))))
	return nil
}

// Get the device configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Get the number of bytes currently allocated by the device.
func (d *Device) MemoryUsage() int64 {
	return d.liveBytes.Live()
}

// Get the peak number of bytes allocated by the device.
func (d *Device) PeakMemoryUsage() int64 {
	return d.liveBytes.Peak()
}

// Install the error handler. A nil handler removes it.
func (d *Device) SetErrorFunction(fn ErrorFunc) {
	d.mu.Lock()
	d.errorFn = fn
	d.mu.Unlock()
}

// Install the memory monitor. A nil monitor removes it.
func (d *Device) SetMemoryMonitorFunction(fn MemoryMonitorFunc) {
	d.mu.Lock()
	d.memoryFn = fn
	d.mu.Unlock()
}

// Get the code of the last failure and reset it to NoError.
func (d *Device) GetError() Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastErr == nil {
		return NoError
	}
	code := d.lastErr.Code
	d.lastErr = nil
	return code
}

// Get the last failure without resetting it. Returns nil if no failure
// occurred since the last call to GetError.
func (d *Device) LastError() *Error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *Device) notifyMemory(delta int64, phase memory.Phase) error {
	d.mu.RLock()
	fn := d.memoryFn
	d.mu.RUnlock()

	if fn == nil {
		return nil
	}
	if !fn(delta, phase == memory.PostEvent) && phase == memory.PreEvent {
		return memory.ErrOutOfMemory
	}
	return nil
}

// Run an entry point body. Failures returned or raised by body are
// classified, recorded as the last error and passed to the error handler
// before guard returns them.
func (d *Device) guard(body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = d.fail(classifyPanic(r))
		}
	}()

	if bodyErr := body(); bodyErr != nil {
		return d.fail(classify(bodyErr))
	}
	return nil
}

// Record a failure and notify the error handler.
func (d *Device) fail(e *Error) error {
	d.mu.Lock()
	d.lastErr = e
	fn := d.errorFn
	d.mu.Unlock()

	d.logger.Warningf("%s: %s", e.Code, e.Message)
	if fn != nil {
		fn(e.Code, e.Message)
	}
	return e
}
