package geometry

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// Triangle indexes three vertices of a mesh.
type Triangle struct {
	V0, V1, V2 uint32
}

// TriangleMesh is an indexed triangle mesh.
type TriangleMesh struct {
	base

	vertexAlloc *memory.Allocator[types.Vec4]
	vertices    []types.Vec4

	triangleAlloc *memory.Allocator[Triangle]
	triangles     []Triangle
}

// Create a mesh with room for numTriangles triangles and numVertices
// vertices. Buffers are allocated through monitor and zero-filled.
func NewTriangleMesh(id uint32, flags Flags, numTriangles, numVertices int, monitor memory.Monitor) (*TriangleMesh, error) {
	b, err := newBase(id, flags)
	if err != nil {
		return nil, err
	}

	m := &TriangleMesh{base: b}
	if m.vertexAlloc, m.vertices, err = allocate[types.Vec4](monitor, numVertices, func() {}); err != nil {
		return nil, err
	}
	if m.triangleAlloc, m.triangles, err = allocate[Triangle](monitor, numTriangles, m.Release); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Geometry.
func (m *TriangleMesh) Kind() prim.Kind { return prim.KindTriangle4 }

// Len implements Geometry.
func (m *TriangleMesh) Len() int { return len(m.triangles) }

// Get the number of vertices.
func (m *TriangleMesh) NumVertices() int { return len(m.vertices) }

// Map implements Geometry.
func (m *TriangleMesh) Map(bt BufferType) (View, error) {
	if err := m.beginMap(bt); err != nil {
		return View{}, err
	}
	if bt == VertexBuffer {
		return View{Type: bt, Vertices: m.vertices}, nil
	}
	return View{Type: bt, Triangles: m.triangles}, nil
}

// Unmap implements Geometry.
func (m *TriangleMesh) Unmap(bt BufferType) error {
	return m.endMap(bt)
}

// Validate implements Geometry.
func (m *TriangleMesh) Validate() error {
	numVertices := uint32(len(m.vertices))
	for primID, tri := range m.triangles {
		if tri.V0 >= numVertices || tri.V1 >= numVertices || tri.V2 >= numVertices {
			return errors.Wrapf(ErrIndexOutOfRange, "geometry %d: triangle %d references vertex outside [0, %d)", m.id, primID, numVertices)
		}
	}
	return nil
}

// Triangle returns the vertices of triangle primID.
func (m *TriangleMesh) Triangle(primID uint32) (v0, v1, v2 types.Vec3) {
	tri := m.triangles[primID]
	return m.vertices[tri.V0].Vec3(), m.vertices[tri.V1].Vec3(), m.vertices[tri.V2].Vec3()
}

// AppendItems implements Geometry. Triangles with non-finite vertices are
// skipped.
func (m *TriangleMesh) AppendItems(items []bvh.Item) []bvh.Item {
	for primID := range m.triangles {
		v0, v1, v2 := m.Triangle(uint32(primID))
		box := prim.TriangleBounds(v0, v1, v2)
		if !finiteBox(box) {
			continue
		}
		items = append(items, bvh.NewItem(box, m.id, uint32(primID)))
	}
	return items
}

// Release implements Geometry.
func (m *TriangleMesh) Release() {
	if m.vertexAlloc != nil {
		m.vertexAlloc.Deallocate(&m.vertices)
	}
	if m.triangleAlloc != nil {
		m.triangleAlloc.Deallocate(&m.triangles)
	}
}
