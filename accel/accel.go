package accel

import (
	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/types"
)

// Accel is implemented by committed acceleration structures. Queries are
// read-only with respect to the structure and may run concurrently.
type Accel interface {
	// Find the closest intersection within [ray.TNear, ray.TFar]. When a
	// nearer intersection is found hit is updated and ray.TFar shrinks to
	// the hit distance.
	Intersect(ray *types.Ray, hit *types.Hit)

	// Returns true if anything intersects the ray segment.
	Occluded(ray *types.Ray) bool

	// Get the bounds of everything the structure contains.
	Bounds() types.BBox
}

var (
	_ Accel = (*bvh.BVH)(nil)
	_ Accel = (*Composite)(nil)
)
