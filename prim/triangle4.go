package prim

import (
	"encoding/gob"
	"math"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/types"
)

// Rays are treated as parallel to a triangle when the determinant falls
// below this fraction of |e1||e2||dir|.
const triangleEpsilon = 1e-7

// Triangle4 packs up to N triangles. Unused lanes are zero-filled and carry
// types.InvalidID as their ids.
type Triangle4 struct {
	V0, V1, V2 Vec3x4

	GeomID [N]uint32
	PrimID [N]uint32
}

// Reset all lanes to the unused state.
func (t *Triangle4) Clear() {
	*t = Triangle4{}
	for j := 0; j < N; j++ {
		t.GeomID[j] = types.InvalidID
		t.PrimID[j] = types.InvalidID
	}
}

// Store a triangle in lane j.
func (t *Triangle4) Set(j int, v0, v1, v2 types.Vec3, geomID, primID uint32) {
	t.V0.SetLane(j, v0)
	t.V1.SetLane(j, v1)
	t.V2.SetLane(j, v2)
	t.GeomID[j] = geomID
	t.PrimID[j] = primID
}

// Get the bounds of the triangle in lane j.
func (t *Triangle4) Bounds(j int) types.BBox {
	return TriangleBounds(t.V0.Lane(j), t.V1.Lane(j), t.V2.Lane(j))
}

// Get the bounds of a triangle.
func TriangleBounds(v0, v1, v2 types.Vec3) types.BBox {
	return types.EmptyBBox().ExtendPoint(v0).ExtendPoint(v1).ExtendPoint(v2)
}

// Intersect the ray with the triangle in lane j using the Moller-Trumbore
// algorithm. Returns the hit distance and barycentric coordinates.
func (t *Triangle4) intersectLane(j int, ray *types.Ray) (dist, u, v float32, ok bool) {
	v0 := t.V0.Lane(j)
	e1 := t.V1.Lane(j).Sub(v0)
	e2 := t.V2.Lane(j).Sub(v0)

	p := ray.Dir.Cross(e2)
	det := e1.Dot(p)
	scale := float64(e1.Len()) * float64(e2.Len()) * float64(ray.Dir.Len())
	if det == 0 || math.Abs(float64(det)) < triangleEpsilon*scale {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	s := ray.Org.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = ray.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	dist = e2.Dot(q) * invDet
	if dist < ray.TNear || dist > ray.TFar {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}

// TriangleLeaves is a monitored arena of Triangle4 blocks.
type TriangleLeaves struct {
	alloc  *memory.Allocator[Triangle4]
	blocks []Triangle4
}

// Allocate an arena with room for n blocks. All lanes start unused.
func NewTriangleLeaves(monitor memory.Monitor, n int) (*TriangleLeaves, error) {
	alloc := memory.NewAllocator[Triangle4](monitor)
	blocks, err := alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	for i := range blocks {
		blocks[i].Clear()
	}
	return &TriangleLeaves{
		alloc:  alloc,
		blocks: blocks,
	}, nil
}

// Get a pointer to block i.
func (l *TriangleLeaves) Block(i int) *Triangle4 {
	return &l.blocks[i]
}

// Kind implements Leaves.
func (l *TriangleLeaves) Kind() Kind { return KindTriangle4 }

// Len implements Leaves.
func (l *TriangleLeaves) Len() int { return len(l.blocks) }

// Lane implements Leaves.
func (l *TriangleLeaves) Lane(block, j int) (geomID, primID uint32) {
	return l.blocks[block].GeomID[j], l.blocks[block].PrimID[j]
}

// LaneBounds implements Leaves.
func (l *TriangleLeaves) LaneBounds(block, j int) types.BBox {
	return l.blocks[block].Bounds(j)
}

// Intersect implements Leaves. Lanes are tested in order and only a strictly
// nearer hit replaces the current one.
func (l *TriangleLeaves) Intersect(block, lanes int, ray *types.Ray, hit *types.Hit) {
	tri := &l.blocks[block]
	for j := 0; j < lanes; j++ {
		dist, u, v, ok := tri.intersectLane(j, ray)
		if !ok || dist >= hit.T {
			continue
		}

		v0 := tri.V0.Lane(j)
		e1 := tri.V1.Lane(j).Sub(v0)
		e2 := tri.V2.Lane(j).Sub(v0)

		ray.TFar = dist
		hit.T = dist
		hit.U = u
		hit.V = v
		hit.Ng = e1.Cross(e2)
		hit.GeomID = tri.GeomID[j]
		hit.PrimID = tri.PrimID[j]
	}
}

// Occluded implements Leaves.
func (l *TriangleLeaves) Occluded(block, lanes int, ray *types.Ray) bool {
	tri := &l.blocks[block]
	for j := 0; j < lanes; j++ {
		if _, _, _, ok := tri.intersectLane(j, ray); ok {
			return true
		}
	}
	return false
}

// Encode implements Leaves.
func (l *TriangleLeaves) Encode(enc *gob.Encoder) error {
	return enc.Encode(blockArchive[Triangle4]{Blocks: l.blocks})
}

// Release implements Leaves.
func (l *TriangleLeaves) Release() {
	l.alloc.Deallocate(&l.blocks)
}

// A TriangleSource resolves triangle vertices by id.
type TriangleSource interface {
	Triangle(geomID, primID uint32) (v0, v1, v2 types.Vec3)
}

// Pack each group of primitive refs into its own Triangle4 block. Groups
// must hold between 1 and N refs; block i receives group i.
func PackTriangles(monitor memory.Monitor, groups [][]Ref, src TriangleSource) (*TriangleLeaves, error) {
	leaves, err := NewTriangleLeaves(monitor, len(groups))
	if err != nil {
		return nil, err
	}
	for i, group := range groups {
		block := &leaves.blocks[i]
		for j, ref := range group {
			v0, v1, v2 := src.Triangle(ref.GeomID, ref.PrimID)
			block.Set(j, v0, v1, v2, ref.GeomID, ref.PrimID)
		}
	}
	return leaves, nil
}
