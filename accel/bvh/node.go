package bvh

import (
	"math"

	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// The branching factor of the hierarchy.
const N = prim.N

// Node is an inner node with N child slots. Child bounds are stored in
// structure-of-arrays form so all slots can be tested against a ray in one
// pass. Empty slots carry inverted bounds.
type Node struct {
	LowerX, LowerY, LowerZ [N]float32
	UpperX, UpperY, UpperZ [N]float32

	Children [N]NodeRef
}

// Reset all slots to Empty.
func (n *Node) Clear() {
	for i := 0; i < N; i++ {
		n.SetChild(i, Empty, types.EmptyBBox())
	}
}

// Get the reference stored in slot i.
func (n *Node) Child(i int) NodeRef {
	return n.Children[i]
}

// Get the bounds of slot i.
func (n *Node) Bounds(i int) types.BBox {
	return types.BBox{
		{n.LowerX[i], n.LowerY[i], n.LowerZ[i]},
		{n.UpperX[i], n.UpperY[i], n.UpperZ[i]},
	}
}

// Store a child reference and its bounds in slot i.
func (n *Node) SetChild(i int, ref NodeRef, box types.BBox) {
	n.Children[i] = ref
	n.LowerX[i], n.LowerY[i], n.LowerZ[i] = box[0][0], box[0][1], box[0][2]
	n.UpperX[i], n.UpperY[i], n.UpperZ[i] = box[1][0], box[1][1], box[1][2]
}

// Get the union of all child bounds.
func (n *Node) Union() types.BBox {
	box := types.EmptyBBox()
	for i := 0; i < N; i++ {
		if !n.Children[i].IsEmpty() {
			box = box.Extend(n.Bounds(i))
		}
	}
	return box
}

// Test the ray segment [tnear, tfar] against the bounds of every non-empty
// slot. The entry distance of each slot is written to dist and a bitmask of
// the slots hit is returned.
func (n *Node) intersect(org, invDir types.Vec3, tnear, tfar float32, dist *[N]float32) (mask uint) {
	for i := 0; i < N; i++ {
		if n.Children[i].IsEmpty() {
			continue
		}

		tmin, tmax := tnear, tfar
		tmin, tmax = slab(n.LowerX[i], n.UpperX[i], org[0], invDir[0], tmin, tmax)
		tmin, tmax = slab(n.LowerY[i], n.UpperY[i], org[1], invDir[1], tmin, tmax)
		tmin, tmax = slab(n.LowerZ[i], n.UpperZ[i], org[2], invDir[2], tmin, tmax)
		if tmin <= tmax {
			dist[i] = tmin
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Clip [tmin, tmax] against the slab [lo, hi] along one axis.
func slab(lo, hi, org, invDir, tmin, tmax float32) (float32, float32) {
	t0 := (lo - org) * invDir
	t1 := (hi - org) * invDir
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	// NaN distances (ray origin on a slab plane with a zero direction
	// component) leave the interval untouched.
	if t0 > tmin {
		tmin = t0
	}
	if t1 < tmax {
		tmax = t1
	}
	return tmin, tmax
}

// Test a single box against the ray segment.
func intersectBox(box types.BBox, org, invDir types.Vec3, tnear, tfar float32) (float32, bool) {
	if box.IsEmpty() {
		return 0, false
	}
	tmin, tmax := tnear, tfar
	for axis := 0; axis < 3; axis++ {
		tmin, tmax = slab(box[0][axis], box[1][axis], org[axis], invDir[axis], tmin, tmax)
	}
	return tmin, tmin <= tmax
}

func reciprocal(dir types.Vec3) types.Vec3 {
	var inv types.Vec3
	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			inv[axis] = float32(math.Inf(1))
			continue
		}
		inv[axis] = 1 / dir[axis]
	}
	return inv
}
