package types

import (
	"fmt"
	"math"
)

// An axis-aligned bounding box stored as a [min, max] pair.
type BBox [2]Vec3

// Create an inverted (empty) bounding box. Extending an empty box with any
// point or box yields that point or box.
func EmptyBBox() BBox {
	return BBox{
		Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Returns true if the box is inverted along any axis.
func (b BBox) IsEmpty() bool {
	return b[0][0] > b[1][0] || b[0][1] > b[1][1] || b[0][2] > b[1][2]
}

// Grow the box so it includes point p.
func (b BBox) ExtendPoint(p Vec3) BBox {
	return BBox{MinVec3(b[0], p), MaxVec3(b[1], p)}
}

// Grow the box so it includes box o.
func (b BBox) Extend(o BBox) BBox {
	return BBox{MinVec3(b[0], o[0]), MaxVec3(b[1], o[1])}
}

// Inflate the box by r along every axis.
func (b BBox) Inflate(r float32) BBox {
	d := Vec3{r, r, r}
	return BBox{b[0].Sub(d), b[1].Add(d)}
}

// Returns true if o lies entirely inside b. An empty o is contained in any box.
func (b BBox) Contains(o BBox) bool {
	if o.IsEmpty() {
		return true
	}
	for axis := 0; axis < 3; axis++ {
		if o[0][axis] < b[0][axis] || o[1][axis] > b[1][axis] {
			return false
		}
	}
	return true
}

// Get the box center.
func (b BBox) Center() Vec3 {
	return b[0].Add(b[1]).Mul(0.5)
}

// Get the box extent along each axis.
func (b BBox) Size() Vec3 {
	return b[1].Sub(b[0])
}

// Get half of the box surface area. Empty boxes have zero area.
func (b BBox) HalfArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	side := b.Size()
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}

func (b BBox) String() string {
	return fmt.Sprintf("[(%g, %g, %g), (%g, %g, %g)]", b[0][0], b[0][1], b[0][2], b[1][0], b[1][1], b[1][2])
}
