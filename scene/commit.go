package scene

import (
	"time"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// A ProgressFunc receives the overall commit progress in [0, 1]. Returning
// false cancels the commit.
type ProgressFunc func(done float64) bool

// BuildOptions tune the hierarchy builder.
type BuildOptions struct {
	// The maximum number of primitives per leaf block. Zero selects the
	// block width.
	MaxLeafSize int

	// The maximum number of goroutines used while scoring splits. Zero
	// places no limit.
	Threads int
}

// Install a progress callback invoked while committing. A nil callback
// removes it.
func (s *Scene) SetProgressMonitor(fn ProgressFunc) {
	s.Lock()
	defer s.Unlock()
	s.progress = fn
}

// The primitive kinds in registration order. Triangles are always
// registered before hair.
var kindOrder = []prim.Kind{prim.KindTriangle4, prim.KindBezier4}

// Commit builds one hierarchy per primitive kind present in the scene and
// publishes either the single hierarchy or a composite over all of them.
// An empty scene commits to an empty triangle hierarchy.
//
// If the build fails, everything allocated by it is released and the
// previously committed structure (if any) stays in place.
func (s *Scene) Commit(opts BuildOptions) error {
	s.Lock()
	defer s.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	if s.mapped > 0 {
		return ErrGeometryMapped
	}

	start := time.Now()
	ids := s.sortedIDs()
	for _, id := range ids {
		if err := s.geometries[id].Validate(); err != nil {
			return err
		}
	}

	// Group build items by kind
	itemsByKind := make(map[prim.Kind][]bvh.Item)
	for _, id := range ids {
		geom := s.geometries[id]
		items, present := itemsByKind[geom.Kind()]
		if !present {
			items = make([]bvh.Item, 0, geom.Len())
		}
		itemsByKind[geom.Kind()] = geom.AppendItems(items)
	}
	totalItems := 0
	for _, items := range itemsByKind {
		totalItems += len(items)
	}

	hierarchies := make([]*bvh.BVH, 0, len(kindOrder))
	releaseBuilt := func() {
		for _, h := range hierarchies {
			h.Release()
		}
	}

	doneItems := 0
	for _, kind := range kindOrder {
		items, present := itemsByKind[kind]
		if !present {
			continue
		}

		h, err := bvh.Build(items, s.packer(kind), bvh.Options{
			Kind:        kind,
			MaxLeafSize: opts.MaxLeafSize,
			Threads:     opts.Threads,
			Monitor:     s.monitor,
			Progress:    s.buildProgress(doneItems, len(items), totalItems),
		})
		if err != nil {
			releaseBuilt()
			return err
		}
		hierarchies = append(hierarchies, h)
		doneItems += len(items)
	}

	var committed accel.Accel
	switch len(hierarchies) {
	case 0:
		empty, err := bvh.NewEmpty(prim.KindTriangle4, s.monitor)
		if err != nil {
			return err
		}
		committed = empty
	case 1:
		committed = hierarchies[0]
	default:
		composite := accel.NewComposite()
		for _, h := range hierarchies {
			composite.Add(h)
		}
		committed = composite
	}

	if s.accel != nil {
		accel.Release(s.accel)
	}
	s.accel = committed
	s.committed = true
	for _, geom := range s.geometries {
		geom.MarkCommitted()
	}

	s.logger.Infof(
		"committed %d geometries (%d primitives) into %d hierarchies in %d ms",
		len(ids), totalItems, len(hierarchies), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

// Map per-hierarchy progress onto overall commit progress.
func (s *Scene) buildProgress(doneItems, kindItems, totalItems int) bvh.ProgressFunc {
	if s.progress == nil {
		return nil
	}
	fn := s.progress
	return func(done float64) bool {
		return fn((float64(doneItems) + done*float64(kindItems)) / float64(totalItems))
	}
}

func (s *Scene) packer(kind prim.Kind) bvh.PackFunc {
	switch kind {
	case prim.KindTriangle4:
		return func(groups [][]prim.Ref) (prim.Leaves, error) {
			return prim.PackTriangles(s.monitor, groups, triangleSource(s.geometries))
		}
	case prim.KindBezier4:
		return func(groups [][]prim.Ref) (prim.Leaves, error) {
			return prim.PackCurves(s.monitor, groups, curveSource(s.geometries))
		}
	}
	return func([][]prim.Ref) (prim.Leaves, error) {
		return nil, errors.Wrapf(prim.ErrUnknownKind, "kind %d", kind)
	}
}

// Resolves triangle vertices from the scene geometry table.
type triangleSource map[uint32]geometry.Geometry

func (src triangleSource) Triangle(geomID, primID uint32) (v0, v1, v2 types.Vec3) {
	return src[geomID].(*geometry.TriangleMesh).Triangle(primID)
}

// Resolves curve control points from the scene geometry table.
type curveSource map[uint32]geometry.Geometry

func (src curveSource) Curve(geomID, primID uint32) [4]types.Vec4 {
	return src[geomID].(*geometry.HairGeometry).Curve(primID)
}
