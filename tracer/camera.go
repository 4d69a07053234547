package tracer

import (
	"fmt"
	"math"

	"github.com/achilleasa/rtcore/types"
)

// Stores the ray directions at the four corners of the camera frustrum.
// Per pixel rays are generated by interpolating the corner rays.
type Frustrum [4]types.Vec3

func (fr Frustrum) String() string {
	return fmt.Sprintf(
		"Frustrum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// The camera type controls the primary rays cast by the tracers.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3
	Frustrum Frustrum

	// Vertical field of view in degrees.
	FOV float32

	// Adjust the frustrum so that Y is inverted
	InvertY bool

	aspect float32
}

func NewCamera(fov float32) *Camera {
	c := &Camera{
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
		aspect:   1,
	}
	c.Update()
	return c
}

// Set the frame aspect ratio (width / height).
func (c *Camera) SetupProjection(aspect float32) {
	c.aspect = aspect
	c.Update()
}

// Move the camera back along the -Z axis until box is fully visible.
func (c *Camera) Frame(box types.BBox) {
	center := box.Center()
	radius := box.Size().Len() * 0.5
	halfFov := float64(c.FOV) * math.Pi / 360.0
	dist := radius / float32(math.Sin(halfFov))

	c.LookAt = center
	c.Position = center.Add(types.Vec3{0, 0, dist})
	c.Up = types.Vec3{0, 1, 0}
	c.Update()
}

// Update the frustrum corner rays from the camera orientation. Corner rays
// are not normalized.
func (c *Camera) Update() {
	dir := c.LookAt.Sub(c.Position).Normalize()
	right := dir.Cross(c.Up).Normalize()
	up := right.Cross(dir)

	halfH := float32(math.Tan(float64(c.FOV) * math.Pi / 360.0))
	halfW := halfH * c.aspect

	var yUp float32 = 1.0
	if c.InvertY {
		yUp = -1.0
	}

	corner := func(x, y float32) types.Vec3 {
		return dir.Add(right.Mul(x * halfW)).Add(up.Mul(y * halfH))
	}
	c.Frustrum[0] = corner(-1, yUp)
	c.Frustrum[1] = corner(1, yUp)
	c.Frustrum[2] = corner(-1, -yUp)
	c.Frustrum[3] = corner(1, -yUp)
}

// Generate the primary ray through the center of pixel (x, y) of a
// frameW x frameH frame.
func (c *Camera) Ray(x, y, frameW, frameH uint32) types.Ray {
	u := (float32(x) + 0.5) / float32(frameW)
	v := (float32(y) + 0.5) / float32(frameH)

	top := c.Frustrum[0].Lerp(c.Frustrum[1], u)
	bottom := c.Frustrum[2].Lerp(c.Frustrum[3], u)
	return types.NewRay(c.Position, top.Lerp(bottom, v).Normalize())
}
