package prim

import (
	"encoding/gob"
	"math"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/types"
)

// The number of linear segments used to approximate each curve.
const curveSegments = 8

// Bezier4 packs up to N cubic bezier hair curves. Each control point stores
// its position in xyz and the hair radius in w.
type Bezier4 struct {
	P0, P1, P2, P3 Vec4x4

	GeomID [N]uint32
	PrimID [N]uint32
}

// Reset all lanes to the unused state.
func (b *Bezier4) Clear() {
	*b = Bezier4{}
	for j := 0; j < N; j++ {
		b.GeomID[j] = types.InvalidID
		b.PrimID[j] = types.InvalidID
	}
}

// Store a curve in lane j.
func (b *Bezier4) Set(j int, cp [4]types.Vec4, geomID, primID uint32) {
	b.P0.SetLane(j, cp[0])
	b.P1.SetLane(j, cp[1])
	b.P2.SetLane(j, cp[2])
	b.P3.SetLane(j, cp[3])
	b.GeomID[j] = geomID
	b.PrimID[j] = primID
}

// Get the control points of lane j.
func (b *Bezier4) ControlPoints(j int) [4]types.Vec4 {
	return [4]types.Vec4{b.P0.Lane(j), b.P1.Lane(j), b.P2.Lane(j), b.P3.Lane(j)}
}

// Get the bounds of the curve in lane j.
func (b *Bezier4) Bounds(j int) types.BBox {
	return CurveBounds(b.ControlPoints(j))
}

// Get the bounds of a curve. Curves lie inside the convex hull of their
// control points so the hull box inflated by the largest radius bounds the
// hair.
func CurveBounds(cp [4]types.Vec4) types.BBox {
	box := types.EmptyBBox()
	var radius float32
	for _, p := range cp {
		box = box.ExtendPoint(p.Vec3())
		if p[3] > radius {
			radius = p[3]
		}
	}
	return box.Inflate(radius)
}

// Evaluate a cubic bezier curve at t.
func evalBezier(cp *[4]types.Vec4, t float32) types.Vec4 {
	s := 1 - t
	b0 := s * s * s
	b1 := 3 * s * s * t
	b2 := 3 * s * t * t
	b3 := t * t * t
	return cp[0].Mul(b0).Add(cp[1].Mul(b1)).Add(cp[2].Mul(b2)).Add(cp[3].Mul(b3))
}

// Intersect the ray with the curve in lane j. The curve is flattened into
// curveSegments linear pieces and each piece is tested as a capsule-like
// segment whose radius is interpolated between its endpoints. Returns the
// nearest hit distance, the curve parameter at the hit and the normal.
func (b *Bezier4) intersectLane(j int, ray *types.Ray) (dist, u float32, ng types.Vec3, ok bool) {
	cp := b.ControlPoints(j)

	dist = ray.TFar
	a := evalBezier(&cp, 0)
	for seg := 0; seg < curveSegments; seg++ {
		t0 := float32(seg) / curveSegments
		t1 := float32(seg+1) / curveSegments
		c := evalBezier(&cp, t1)

		segT, segDist, segNg, segOK := intersectSegment(ray, a, c)
		if segOK && segDist < dist {
			dist = segDist
			u = t0 + segT*(t1-t0)
			ng = segNg
			ok = true
		}
		a = c
	}
	return dist, u, ng, ok
}

// Find the closest approach between the ray and the segment a-b and report
// a hit if the distance is within the interpolated radius.
func intersectSegment(ray *types.Ray, a, b types.Vec4) (segT, dist float32, ng types.Vec3, ok bool) {
	pa := a.Vec3()
	axis := b.Vec3().Sub(pa)
	w0 := ray.Org.Sub(pa)

	dd := ray.Dir.Dot(ray.Dir)
	if dd == 0 {
		return 0, 0, ng, false
	}
	da := ray.Dir.Dot(axis)
	aa := axis.Dot(axis)
	dw := ray.Dir.Dot(w0)
	aw := axis.Dot(w0)

	denom := dd*aa - da*da
	if aa > 0 && denom > 1e-12*dd*aa {
		segT = (dd*aw - da*dw) / denom
	} else if aa > 0 {
		// parallel
		segT = aw / aa
	}
	segT = clamp01(segT)

	onAxis := pa.Add(axis.Mul(segT))
	dist = ray.Dir.Dot(onAxis.Sub(ray.Org)) / dd
	if dist < ray.TNear || dist > ray.TFar {
		return 0, 0, ng, false
	}

	ng = ray.At(dist).Sub(onAxis)
	radius := a[3] + (b[3]-a[3])*segT
	if ng.Dot(ng) > radius*radius {
		return 0, 0, ng, false
	}
	if ng.Len() == 0 {
		ng = ray.Dir.Mul(-1)
	}
	return segT, dist, ng, true
}

func clamp01(v float32) float32 {
	return float32(math.Max(0, math.Min(1, float64(v))))
}

// BezierLeaves is a monitored arena of Bezier4 blocks.
type BezierLeaves struct {
	alloc  *memory.Allocator[Bezier4]
	blocks []Bezier4
}

// Allocate an arena with room for n blocks. All lanes start unused.
func NewBezierLeaves(monitor memory.Monitor, n int) (*BezierLeaves, error) {
	alloc := memory.NewAllocator[Bezier4](monitor)
	blocks, err := alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	for i := range blocks {
		blocks[i].Clear()
	}
	return &BezierLeaves{
		alloc:  alloc,
		blocks: blocks,
	}, nil
}

// Get a pointer to block i.
func (l *BezierLeaves) Block(i int) *Bezier4 {
	return &l.blocks[i]
}

// Kind implements Leaves.
func (l *BezierLeaves) Kind() Kind { return KindBezier4 }

// Len implements Leaves.
func (l *BezierLeaves) Len() int { return len(l.blocks) }

// Lane implements Leaves.
func (l *BezierLeaves) Lane(block, j int) (geomID, primID uint32) {
	return l.blocks[block].GeomID[j], l.blocks[block].PrimID[j]
}

// LaneBounds implements Leaves.
func (l *BezierLeaves) LaneBounds(block, j int) types.BBox {
	return l.blocks[block].Bounds(j)
}

// Intersect implements Leaves.
func (l *BezierLeaves) Intersect(block, lanes int, ray *types.Ray, hit *types.Hit) {
	curve := &l.blocks[block]
	for j := 0; j < lanes; j++ {
		dist, u, ng, ok := curve.intersectLane(j, ray)
		if !ok || dist >= hit.T {
			continue
		}

		ray.TFar = dist
		hit.T = dist
		hit.U = u
		hit.V = 0
		hit.Ng = ng
		hit.GeomID = curve.GeomID[j]
		hit.PrimID = curve.PrimID[j]
	}
}

// Occluded implements Leaves.
func (l *BezierLeaves) Occluded(block, lanes int, ray *types.Ray) bool {
	curve := &l.blocks[block]
	for j := 0; j < lanes; j++ {
		if _, _, _, ok := curve.intersectLane(j, ray); ok {
			return true
		}
	}
	return false
}

// Encode implements Leaves.
func (l *BezierLeaves) Encode(enc *gob.Encoder) error {
	return enc.Encode(blockArchive[Bezier4]{Blocks: l.blocks})
}

// Release implements Leaves.
func (l *BezierLeaves) Release() {
	l.alloc.Deallocate(&l.blocks)
}

// A CurveSource resolves curve control points by id.
type CurveSource interface {
	Curve(geomID, primID uint32) [4]types.Vec4
}

// Pack each group of primitive refs into its own Bezier4 block. Groups
// must hold between 1 and N refs; block i receives group i.
func PackCurves(monitor memory.Monitor, groups [][]Ref, src CurveSource) (*BezierLeaves, error) {
	leaves, err := NewBezierLeaves(monitor, len(groups))
	if err != nil {
		return nil, err
	}
	for i, group := range groups {
		block := &leaves.blocks[i]
		for j, ref := range group {
			block.Set(j, src.Curve(ref.GeomID, ref.PrimID), ref.GeomID, ref.PrimID)
		}
	}
	return leaves, nil
}
