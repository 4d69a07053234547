package rtcore

import (
	"io"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/scene"
	"github.com/achilleasa/rtcore/types"
)

// The geometry id returned by failed geometry constructors.
const InvalidGeometryID = types.InvalidID

// Check that the device is usable and s is one of its scenes.
func (d *Device) checkScene(s *scene.Scene) error {
	if s == nil {
		return newError(InvalidArgument, "invalid scene argument")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return newError(InvalidOperation, "device is closed")
	}
	if _, owned := d.scenes[s]; !owned {
		return newError(InvalidArgument, "scene does not belong to this device")
	}
	return nil
}

func checkGeometryID(id uint32) error {
	if id == InvalidGeometryID {
		return newError(InvalidArgument, "invalid geometry id")
	}
	return nil
}

func checkBufferType(bt geometry.BufferType) error {
	if bt != geometry.VertexBuffer && bt != geometry.IndexBuffer {
		return newError(InvalidArgument, "invalid buffer type %d", bt)
	}
	return nil
}

func (d *Device) register(s *scene.Scene) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return newError(InvalidOperation, "device is closed")
	}
	d.scenes[s] = struct{}{}
	return nil
}

// Create a new scene.
func (d *Device) NewScene(flags scene.Flags) (*scene.Scene, error) {
	var s *scene.Scene
	err := d.guard(func() error {
		var err error
		if s, err = scene.New(flags, d.monitor); err != nil {
			return err
		}
		return d.register(s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Delete a scene releasing all its memory.
func (d *Device) DeleteScene(s *scene.Scene) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		d.mu.Lock()
		delete(d.scenes, s)
		d.mu.Unlock()
		s.Release()
		return nil
	})
}

// Add a triangle mesh with numTriangles triangles and numVertices vertices
// to s. Returns InvalidGeometryID on failure.
func (d *Device) NewTriangleMesh(s *scene.Scene, flags geometry.Flags, numTriangles, numVertices int) (uint32, error) {
	id := InvalidGeometryID
	err := d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if numTriangles < 0 || numVertices < 0 {
			return newError(InvalidArgument, "invalid mesh size (%d triangles, %d vertices)", numTriangles, numVertices)
		}
		var err error
		id, err = s.NewTriangleMesh(flags, numTriangles, numVertices)
		return err
	})
	if err != nil {
		return InvalidGeometryID, err
	}
	return id, nil
}

// Add a hair geometry with numCurves curves and numVertices control points
// to s. Returns InvalidGeometryID on failure.
func (d *Device) NewHairGeometry(s *scene.Scene, flags geometry.Flags, numCurves, numVertices int) (uint32, error) {
	id := InvalidGeometryID
	err := d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if numCurves < 0 || numVertices < 0 {
			return newError(InvalidArgument, "invalid hair size (%d curves, %d vertices)", numCurves, numVertices)
		}
		var err error
		id, err = s.NewHairGeometry(flags, numCurves, numVertices)
		return err
	})
	if err != nil {
		return InvalidGeometryID, err
	}
	return id, nil
}

// Remove a geometry from s.
func (d *Device) DeleteGeometry(s *scene.Scene, id uint32) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if err := checkGeometryID(id); err != nil {
			return err
		}
		return s.DeleteGeometry(id)
	})
}

// Map a geometry buffer for writing.
func (d *Device) MapBuffer(s *scene.Scene, id uint32, bt geometry.BufferType) (geometry.View, error) {
	var view geometry.View
	err := d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if err := checkGeometryID(id); err != nil {
			return err
		}
		if err := checkBufferType(bt); err != nil {
			return err
		}
		var err error
		view, err = s.MapBuffer(id, bt)
		return err
	})
	return view, err
}

// Unmap a geometry buffer.
func (d *Device) UnmapBuffer(s *scene.Scene, id uint32, bt geometry.BufferType) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if err := checkGeometryID(id); err != nil {
			return err
		}
		if err := checkBufferType(bt); err != nil {
			return err
		}
		return s.UnmapBuffer(id, bt)
	})
}

// Install a progress callback for commits of s. Returning false from the
// callback cancels the commit with a Cancelled failure.
func (d *Device) SetProgressMonitorFunction(s *scene.Scene, fn scene.ProgressFunc) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		s.SetProgressMonitor(fn)
		return nil
	})
}

// Build the acceleration structure of s.
func (d *Device) Commit(s *scene.Scene) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		return s.Commit(scene.BuildOptions{
			MaxLeafSize: d.cfg.MaxLeafSize,
			Threads:     d.cfg.BuildThreads,
		})
	})
}

// Find the closest intersection of ray with s. On a hit, hit is filled in
// and ray.TFar is set to the hit distance.
func (d *Device) Intersect(s *scene.Scene, ray *types.Ray, hit *types.Hit) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if ray == nil || hit == nil {
			return newError(InvalidArgument, "invalid ray argument")
		}
		return s.Intersect(ray, hit)
	})
}

// Check whether anything in s intersects the ray segment.
func (d *Device) Occluded(s *scene.Scene, ray *types.Ray) (bool, error) {
	var occluded bool
	err := d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if ray == nil {
			return newError(InvalidArgument, "invalid ray argument")
		}
		var err error
		occluded, err = s.Occluded(ray)
		return err
	})
	return occluded, err
}

// Get the committed acceleration structure of s for introspection.
func (d *Device) Accel(s *scene.Scene) (accel.Accel, error) {
	var a accel.Accel
	err := d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		var err error
		a, err = s.Accel()
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Write the committed hierarchies of s to w.
func (d *Device) SaveScene(s *scene.Scene, w io.Writer) error {
	return d.guard(func() error {
		if err := d.checkScene(s); err != nil {
			return err
		}
		if w == nil {
			return newError(InvalidArgument, "invalid writer argument")
		}
		return s.Save(w)
	})
}

// Load a scene archive. The returned scene is committed and read-only.
func (d *Device) LoadScene(r io.Reader) (*scene.Scene, error) {
	var s *scene.Scene
	err := d.guard(func() error {
		if r == nil {
			return newError(InvalidArgument, "invalid reader argument")
		}
		var err error
		if s, err = scene.Load(r, d.monitor); err != nil {
			return err
		}
		if err = d.register(s); err != nil {
			s.Release()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
