package tracer

import (
	"image/color"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/types"
)

var ErrUnknownShading = errors.New("tracer: unknown shading mode")

// Shading selects how hits are turned into pixel colors.
type Shading uint8

const (
	// Gray levels based on the angle between the ray and the surface.
	ShadeFacing Shading = iota

	// Surface normals mapped to RGB.
	ShadeNormal

	// Gray levels based on hit distance; nearer is brighter.
	ShadeDepth
)

var shadingNames = map[Shading]string{
	ShadeFacing: "facing",
	ShadeNormal: "normal",
	ShadeDepth:  "depth",
}

func (s Shading) String() string {
	if name, ok := shadingNames[s]; ok {
		return name
	}
	return "unknown"
}

// Parse a shading mode name.
func ParseShading(name string) (Shading, error) {
	for s, sName := range shadingNames {
		if sName == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownShading, "%q", name)
}

var background = color.RGBA{0, 0, 0, 255}

// Get the pixel color for a traced ray.
func shade(mode Shading, ray *types.Ray, hit *types.Hit, maxDepth float32) color.RGBA {
	if !hit.Valid() {
		return background
	}

	n := hit.Ng.Normalize()
	if n.Dot(ray.Dir) > 0 {
		n = n.Mul(-1)
	}

	switch mode {
	case ShadeNormal:
		return color.RGBA{toByte(n[0]*0.5 + 0.5), toByte(n[1]*0.5 + 0.5), toByte(n[2]*0.5 + 0.5), 255}
	case ShadeDepth:
		g := toByte(1 - hit.T/maxDepth)
		return color.RGBA{g, g, g, 255}
	}

	g := toByte(-n.Dot(ray.Dir.Normalize()))
	return color.RGBA{g, g, g, 255}
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
