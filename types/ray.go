package types

import "math"

// Geometry and primitive ids use this value to indicate "no id".
const InvalidID = ^uint32(0)

// A ray segment [TNear, TFar] starting at Org and travelling along Dir.
// Closest-hit queries shrink TFar as nearer hits are found.
type Ray struct {
	Org Vec3
	Dir Vec3

	TNear float32
	TFar  float32
}

// Create a ray covering [0, +inf).
func NewRay(org, dir Vec3) Ray {
	return Ray{
		Org:   org,
		Dir:   dir,
		TNear: 0,
		TFar:  float32(math.Inf(1)),
	}
}

// Get the point at parametric distance t.
func (r *Ray) At(t float32) Vec3 {
	return r.Org.Add(r.Dir.Mul(t))
}

// A hit record. GeomID is InvalidID when nothing was hit.
type Hit struct {
	GeomID uint32
	PrimID uint32

	// Parametric hit distance along the ray.
	T float32

	// Surface parameters; barycentrics for triangles, curve parameter for hair.
	U, V float32

	// Unnormalized geometric normal.
	Ng Vec3
}

// Create a hit record that reports a miss.
func NewHit() Hit {
	return Hit{
		GeomID: InvalidID,
		PrimID: InvalidID,
		T:      float32(math.Inf(1)),
	}
}

// Returns true if the record describes a hit.
func (h *Hit) Valid() bool {
	return h.GeomID != InvalidID
}
