package geometry

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// HairGeometry is a set of cubic bezier curves. Each curve is defined by
// four consecutive control points starting at its index buffer entry.
type HairGeometry struct {
	base

	vertexAlloc *memory.Allocator[types.Vec4]
	vertices    []types.Vec4

	curveAlloc *memory.Allocator[uint32]
	curves     []uint32
}

// Create a hair geometry with room for numCurves curves and numVertices
// control points.
func NewHairGeometry(id uint32, flags Flags, numCurves, numVertices int, monitor memory.Monitor) (*HairGeometry, error) {
	b, err := newBase(id, flags)
	if err != nil {
		return nil, err
	}

	h := &HairGeometry{base: b}
	if h.vertexAlloc, h.vertices, err = allocate[types.Vec4](monitor, numVertices, func() {}); err != nil {
		return nil, err
	}
	if h.curveAlloc, h.curves, err = allocate[uint32](monitor, numCurves, h.Release); err != nil {
		return nil, err
	}
	return h, nil
}

// Kind implements Geometry.
func (h *HairGeometry) Kind() prim.Kind { return prim.KindBezier4 }

// Len implements Geometry.
func (h *HairGeometry) Len() int { return len(h.curves) }

// Get the number of control points.
func (h *HairGeometry) NumVertices() int { return len(h.vertices) }

// Map implements Geometry.
func (h *HairGeometry) Map(bt BufferType) (View, error) {
	if err := h.beginMap(bt); err != nil {
		return View{}, err
	}
	if bt == VertexBuffer {
		return View{Type: bt, Vertices: h.vertices}, nil
	}
	return View{Type: bt, Curves: h.curves}, nil
}

// Unmap implements Geometry.
func (h *HairGeometry) Unmap(bt BufferType) error {
	return h.endMap(bt)
}

// Validate implements Geometry.
func (h *HairGeometry) Validate() error {
	numVertices := uint64(len(h.vertices))
	for primID, first := range h.curves {
		if uint64(first)+3 >= numVertices {
			return errors.Wrapf(ErrIndexOutOfRange, "geometry %d: curve %d references control points [%d, %d] outside [0, %d)", h.id, primID, first, uint64(first)+3, numVertices)
		}
	}
	return nil
}

// Curve returns the control points of curve primID.
func (h *HairGeometry) Curve(primID uint32) [4]types.Vec4 {
	first := h.curves[primID]
	return [4]types.Vec4{h.vertices[first], h.vertices[first+1], h.vertices[first+2], h.vertices[first+3]}
}

// AppendItems implements Geometry. Curves with non-finite control points
// are skipped.
func (h *HairGeometry) AppendItems(items []bvh.Item) []bvh.Item {
	for primID := range h.curves {
		box := prim.CurveBounds(h.Curve(uint32(primID)))
		if !finiteBox(box) {
			continue
		}
		items = append(items, bvh.NewItem(box, h.id, uint32(primID)))
	}
	return items
}

// Release implements Geometry.
func (h *HairGeometry) Release() {
	if h.vertexAlloc != nil {
		h.vertexAlloc.Deallocate(&h.vertices)
	}
	if h.curveAlloc != nil {
		h.curveAlloc.Deallocate(&h.curves)
	}
}
