package geometry

import (
	"math"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

var (
	ErrAlreadyMapped   = errors.New("geometry: buffer is already mapped")
	ErrNotMapped       = errors.New("geometry: buffer is not mapped")
	ErrStaticModified  = errors.New("geometry: static geometry cannot be modified after commit")
	ErrIndexOutOfRange = errors.New("geometry: index out of range")
	ErrInvalidBuffer   = errors.New("geometry: invalid buffer type")
	ErrInvalidFlags    = errors.New("geometry: invalid geometry flags")
)

// Flags describe how a geometry will be updated.
type Flags uint8

const (
	// The geometry is never modified after its first commit.
	Static Flags = iota

	// The geometry may be modified and recommitted.
	Dynamic
)

func (f Flags) String() string {
	switch f {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	}
	return "invalid"
}

// BufferType selects one of the buffers of a geometry.
type BufferType uint8

const (
	VertexBuffer BufferType = iota
	IndexBuffer

	numBufferTypes
)

func (bt BufferType) String() string {
	switch bt {
	case VertexBuffer:
		return "vertex"
	case IndexBuffer:
		return "index"
	}
	return "invalid"
}

// A View exposes a mapped buffer for writing. Only the field matching the
// mapped buffer is set. Views must not be used after the buffer has been
// unmapped.
type View struct {
	Type BufferType

	// Vertex positions. Hair control points store the radius in w.
	Vertices []types.Vec4

	// Triangle mesh index buffer.
	Triangles []Triangle

	// Hair index buffer; the first control point of each curve.
	Curves []uint32
}

// Geometry is implemented by the geometry types a scene can hold.
type Geometry interface {
	// The id assigned by the owning scene.
	ID() uint32

	// The packed leaf layout used for this geometry's primitives.
	Kind() prim.Kind

	Flags() Flags

	// The number of primitives.
	Len() int

	// Map a buffer for writing.
	Map(bt BufferType) (View, error)

	// Unmap a previously mapped buffer.
	Unmap(bt BufferType) error

	// Returns true if any buffer is mapped.
	Mapped() bool

	// Check that all indices reference existing vertices.
	Validate() error

	// Append a build item for each valid primitive.
	AppendItems(items []bvh.Item) []bvh.Item

	// Record that the geometry took part in a successful commit.
	MarkCommitted()

	// Release the geometry buffers.
	Release()
}

// State shared by all geometry types.
type base struct {
	id        uint32
	flags     Flags
	mapped    [numBufferTypes]bool
	committed bool
}

func newBase(id uint32, flags Flags) (base, error) {
	if flags != Static && flags != Dynamic {
		return base{}, errors.Wrapf(ErrInvalidFlags, "flags %d", flags)
	}
	return base{id: id, flags: flags}, nil
}

// ID implements Geometry.
func (g *base) ID() uint32 { return g.id }

// Flags implements Geometry.
func (g *base) Flags() Flags { return g.flags }

// Mapped implements Geometry.
func (g *base) Mapped() bool {
	for _, mapped := range g.mapped {
		if mapped {
			return true
		}
	}
	return false
}

// MarkCommitted implements Geometry.
func (g *base) MarkCommitted() { g.committed = true }

// Check whether buffer bt may be mapped and mark it as mapped.
func (g *base) beginMap(bt BufferType) error {
	if bt >= numBufferTypes {
		return errors.Wrapf(ErrInvalidBuffer, "buffer type %d", bt)
	}
	if g.mapped[bt] {
		return errors.Wrapf(ErrAlreadyMapped, "geometry %d: %s buffer", g.id, bt)
	}
	if g.committed && g.flags == Static {
		return errors.Wrapf(ErrStaticModified, "geometry %d", g.id)
	}
	g.mapped[bt] = true
	return nil
}

func (g *base) endMap(bt BufferType) error {
	if bt >= numBufferTypes {
		return errors.Wrapf(ErrInvalidBuffer, "buffer type %d", bt)
	}
	if !g.mapped[bt] {
		return errors.Wrapf(ErrNotMapped, "geometry %d: %s buffer", g.id, bt)
	}
	g.mapped[bt] = false
	return nil
}

// Returns true if all components of the box are finite.
func finiteBox(box types.BBox) bool {
	for _, corner := range box {
		for _, v := range corner {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return false
			}
		}
	}
	return true
}

// Allocate a monitored buffer, releasing any previously allocated buffers
// through cleanup on failure.
func allocate[T any](monitor memory.Monitor, n int, cleanup func()) (*memory.Allocator[T], []T, error) {
	alloc := memory.NewAllocator[T](monitor)
	buf, err := alloc.Allocate(n)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return alloc, buf, nil
}
