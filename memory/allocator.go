package memory

import (
	"reflect"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/log"
)

const (
	// Alignment (in bytes) of every block returned by an Allocator.
	Alignment = 64

	// Requests larger than this, or larger than HostLimit, are rejected
	// without consulting the monitor.
	MaxAllocation int64 = 1 << 40
)

var (
	ErrOutOfMemory   = errors.New("memory: out of memory")
	ErrInvalidLength = errors.New("memory: invalid allocation length")
)

var logger = log.New("memory")

// Allocator performs aligned, monitored allocations of T values. Every
// allocation is reported to the monitor before memory is committed and every
// deallocation after the memory has been released.
//
// T must not contain pointers: blocks are carved out of untyped byte
// storage which the garbage collector does not scan.
type Allocator[T any] struct {
	monitor  Monitor
	elemSize int64
}

// Create a new allocator that reports to monitor. A nil monitor disables
// reporting. NewAllocator panics if T contains pointers.
func NewAllocator[T any](monitor Monitor) *Allocator[T] {
	var zero T
	if typ := reflect.TypeOf((*T)(nil)).Elem(); hasPointers(typ) {
		panic("memory: allocator element type " + typ.String() + " contains pointers")
	}
	if monitor == nil {
		monitor = NopMonitor
	}
	return &Allocator[T]{
		monitor:  monitor,
		elemSize: int64(unsafe.Sizeof(zero)),
	}
}

// Get the size in bytes of a single element.
func (a *Allocator[T]) ElemSize() int64 {
	return a.elemSize
}

// Allocate a zeroed, aligned block of n elements. A pre event for
// n*sizeof(T) bytes is emitted before the block is created; if the monitor
// rejects it, Allocate fails with an error whose cause is ErrOutOfMemory.
func (a *Allocator[T]) Allocate(n int) ([]T, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "requested %d elements", n)
	}
	if n == 0 {
		return nil, nil
	}

	if a.elemSize > 0 && int64(n) > HostLimit()/a.elemSize {
		return nil, errors.Wrapf(ErrOutOfMemory, "cannot allocate %d elements of %d bytes; host limit is %s", n, a.elemSize, humanize.IBytes(uint64(HostLimit())))
	}

	bytes := int64(n) * a.elemSize
	if err := a.monitor.Notify(bytes, PreEvent); err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "allocation of %s rejected by memory monitor: %v", humanize.IBytes(uint64(bytes)), err)
	}

	if bytes == 0 {
		return make([]T, n), nil
	}
	ptr := alignedMake(int(bytes), Alignment)
	return unsafe.Slice((*T)(ptr), n), nil
}

// Release the block pointed to by p and emit a post event with the negated
// block size. p must hold a slice returned by Allocate; it is set to nil
// before the monitor is notified. Errors reported by the monitor for post
// events are logged and otherwise ignored since the memory is already gone.
func (a *Allocator[T]) Deallocate(p *[]T) {
	if p == nil || *p == nil {
		return
	}

	n := cap(*p)
	*p = nil

	bytes := int64(n) * a.elemSize
	if err := a.monitor.Notify(-bytes, PostEvent); err != nil {
		logger.Warningf("memory monitor failed to process release of %s: %v", humanize.IBytes(uint64(bytes)), err)
	}
}

// Store val at p. Element construction never emits monitor events.
func Construct[T any](p *T, val T) {
	*p = val
}

// Reset the element at p to its zero value. Element destruction never
// emits monitor events.
func Destroy[T any](p *T) {
	var zero T
	*p = zero
}

// Allocate size bytes of zeroed memory whose address is a multiple of align.
func alignedMake(size, align int) unsafe.Pointer {
	buf := make([]byte, size+align-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	offset := (align - int(base%uintptr(align))) % align
	return unsafe.Pointer(&buf[offset])
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Chan, reflect.Func:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
