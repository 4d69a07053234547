package asset

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/rtcore"
	"github.com/achilleasa/rtcore/scene"
	"github.com/achilleasa/rtcore/types"
)

// A Mesh is a named group of triangles with its own vertex buffer.
type Mesh struct {
	Name      string
	Vertices  []types.Vec4
	Triangles []geometry.Triangle
}

// Hair is a named group of cubic bezier segments. Each entry in Curves is
// the index of the first of four consecutive control points. The w
// component of each control point holds the curve radius.
type Hair struct {
	Name     string
	Vertices []types.Vec4
	Curves   []uint32
}

// A Model holds the geometry parsed from a scene file.
type Model struct {
	Meshes []*Mesh
	Hair   []*Hair
}

// Get the number of triangles and curve segments in the model.
func (m *Model) Primitives() (triangles, curves int) {
	for _, mesh := range m.Meshes {
		triangles += len(mesh.Triangles)
	}
	for _, hair := range m.Hair {
		curves += len(hair.Curves)
	}
	return triangles, curves
}

// Get the bounding box of every vertex in the model.
func (m *Model) Bounds() types.BBox {
	box := types.EmptyBBox()
	for _, mesh := range m.Meshes {
		for _, v := range mesh.Vertices {
			box = box.ExtendPoint(v.Vec3())
		}
	}
	for _, hair := range m.Hair {
		for _, v := range hair.Vertices {
			box = box.ExtendPoint(v.Vec3())
		}
	}
	return box
}

// Upload the model geometry into s using static geometries. Meshes are
// added before hair so geometry ids follow the model order.
func (m *Model) Upload(d *rtcore.Device, s *scene.Scene) error {
	for _, mesh := range m.Meshes {
		id, err := d.NewTriangleMesh(s, geometry.Static, len(mesh.Triangles), len(mesh.Vertices))
		if err != nil {
			return errors.Wrapf(err, "mesh %q", mesh.Name)
		}
		if err = writeBuffer(d, s, id, geometry.VertexBuffer, func(v geometry.View) { copy(v.Vertices, mesh.Vertices) }); err != nil {
			return errors.Wrapf(err, "mesh %q", mesh.Name)
		}
		if err = writeBuffer(d, s, id, geometry.IndexBuffer, func(v geometry.View) { copy(v.Triangles, mesh.Triangles) }); err != nil {
			return errors.Wrapf(err, "mesh %q", mesh.Name)
		}
	}

	for _, hair := range m.Hair {
		id, err := d.NewHairGeometry(s, geometry.Static, len(hair.Curves), len(hair.Vertices))
		if err != nil {
			return errors.Wrapf(err, "hair %q", hair.Name)
		}
		if err = writeBuffer(d, s, id, geometry.VertexBuffer, func(v geometry.View) { copy(v.Vertices, hair.Vertices) }); err != nil {
			return errors.Wrapf(err, "hair %q", hair.Name)
		}
		if err = writeBuffer(d, s, id, geometry.IndexBuffer, func(v geometry.View) { copy(v.Curves, hair.Curves) }); err != nil {
			return errors.Wrapf(err, "hair %q", hair.Name)
		}
	}
	return nil
}

func writeBuffer(d *rtcore.Device, s *scene.Scene, id uint32, bt geometry.BufferType, fill func(geometry.View)) error {
	view, err := d.MapBuffer(s, id, bt)
	if err != nil {
		return err
	}
	fill(view)
	return d.UnmapBuffer(s, id, bt)
}
