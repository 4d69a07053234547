package scene

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/types"
)

var (
	ErrNotCommitted    = errors.New("scene: scene has not been committed")
	ErrGeometryMapped  = errors.New("scene: scene has mapped geometry buffers")
	ErrUnknownGeometry = errors.New("scene: unknown geometry id")
	ErrStaticScene     = errors.New("scene: static scene cannot be modified after commit")
	ErrReadOnly        = errors.New("scene: scene was loaded from an archive and is read-only")
	ErrInvalidFlags    = errors.New("scene: invalid scene flags")
	ErrTooManyGeometry = errors.New("scene: geometry id space exhausted")
)

// Flags describe how a scene will be updated.
type Flags uint8

const (
	// Geometry cannot be added or removed after the first commit.
	Static Flags = iota

	// Geometry may be added, removed and modified between commits.
	Dynamic
)

func (f Flags) String() string {
	switch f {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	}
	return "invalid"
}

// Scene holds a set of geometries and, once committed, the acceleration
// structure built over them. Queries may run concurrently with each other;
// mutations are serialized against queries.
type Scene struct {
	sync.RWMutex

	logger  log.Logger
	flags   Flags
	monitor memory.Monitor

	geometries map[uint32]geometry.Geometry
	nextID     uint32
	mapped     int

	accel     accel.Accel
	committed bool
	readOnly  bool
	progress  ProgressFunc
}

// Create an empty scene. All scene allocations are reported to monitor.
func New(flags Flags, monitor memory.Monitor) (*Scene, error) {
	if flags != Static && flags != Dynamic {
		return nil, errors.Wrapf(ErrInvalidFlags, "flags %d", flags)
	}
	return &Scene{
		logger:     log.New("scene"),
		flags:      flags,
		monitor:    monitor,
		geometries: make(map[uint32]geometry.Geometry),
	}, nil
}

// Get the scene flags.
func (s *Scene) Flags() Flags {
	return s.flags
}

// Returns true if the scene holds a committed acceleration structure.
func (s *Scene) Committed() bool {
	s.RLock()
	defer s.RUnlock()
	return s.committed
}

// Check whether the geometry set may be changed.
func (s *Scene) checkModifiable() error {
	if s.readOnly {
		return ErrReadOnly
	}
	if s.flags == Static && s.committed {
		return ErrStaticScene
	}
	return nil
}

// Reserve the next geometry id. Ids are never reused.
func (s *Scene) reserveID() (uint32, error) {
	if s.nextID == types.InvalidID {
		return 0, ErrTooManyGeometry
	}
	id := s.nextID
	s.nextID++
	return id, nil
}

// Add a triangle mesh and return its id.
func (s *Scene) NewTriangleMesh(flags geometry.Flags, numTriangles, numVertices int) (uint32, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkModifiable(); err != nil {
		return types.InvalidID, err
	}
	id, err := s.reserveID()
	if err != nil {
		return types.InvalidID, err
	}
	mesh, err := geometry.NewTriangleMesh(id, flags, numTriangles, numVertices, s.monitor)
	if err != nil {
		return types.InvalidID, err
	}
	s.geometries[id] = mesh
	return id, nil
}

// Add a hair geometry and return its id.
func (s *Scene) NewHairGeometry(flags geometry.Flags, numCurves, numVertices int) (uint32, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkModifiable(); err != nil {
		return types.InvalidID, err
	}
	id, err := s.reserveID()
	if err != nil {
		return types.InvalidID, err
	}
	hair, err := geometry.NewHairGeometry(id, flags, numCurves, numVertices, s.monitor)
	if err != nil {
		return types.InvalidID, err
	}
	s.geometries[id] = hair
	return id, nil
}

// Remove a geometry and release its buffers. The committed structure keeps
// answering queries until the next commit.
func (s *Scene) DeleteGeometry(id uint32) error {
	s.Lock()
	defer s.Unlock()

	if err := s.checkModifiable(); err != nil {
		return err
	}
	geom, err := s.lookup(id)
	if err != nil {
		return err
	}
	if geom.Mapped() {
		return errors.Wrapf(ErrGeometryMapped, "geometry %d", id)
	}
	geom.Release()
	delete(s.geometries, id)
	return nil
}

// Map a geometry buffer for writing.
func (s *Scene) MapBuffer(id uint32, bt geometry.BufferType) (geometry.View, error) {
	s.Lock()
	defer s.Unlock()

	if s.readOnly {
		return geometry.View{}, ErrReadOnly
	}
	geom, err := s.lookup(id)
	if err != nil {
		return geometry.View{}, err
	}
	view, err := geom.Map(bt)
	if err != nil {
		return geometry.View{}, err
	}
	s.mapped++
	return view, nil
}

// Unmap a geometry buffer.
func (s *Scene) UnmapBuffer(id uint32, bt geometry.BufferType) error {
	s.Lock()
	defer s.Unlock()

	geom, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err = geom.Unmap(bt); err != nil {
		return err
	}
	s.mapped--
	return nil
}

// Get a geometry by id.
func (s *Scene) Geometry(id uint32) (geometry.Geometry, error) {
	s.RLock()
	defer s.RUnlock()
	return s.lookup(id)
}

func (s *Scene) lookup(id uint32) (geometry.Geometry, error) {
	geom, ok := s.geometries[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownGeometry, "id %d", id)
	}
	return geom, nil
}

// Get the ids of all geometries in ascending order.
func (s *Scene) GeometryIDs() []uint32 {
	s.RLock()
	defer s.RUnlock()
	return s.sortedIDs()
}

func (s *Scene) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(s.geometries))
	for id := range s.geometries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Check that the scene can answer queries.
func (s *Scene) checkQueryable() error {
	if s.mapped > 0 {
		return ErrGeometryMapped
	}
	if !s.committed {
		return ErrNotCommitted
	}
	return nil
}

// Get the committed acceleration structure. The result is either a single
// *bvh.BVH or an *accel.Composite.
func (s *Scene) Accel() (accel.Accel, error) {
	s.RLock()
	defer s.RUnlock()

	if err := s.checkQueryable(); err != nil {
		return nil, err
	}
	return s.accel, nil
}

// Find the closest intersection of ray with the scene.
func (s *Scene) Intersect(ray *types.Ray, hit *types.Hit) error {
	s.RLock()
	defer s.RUnlock()

	if err := s.checkQueryable(); err != nil {
		return err
	}
	s.accel.Intersect(ray, hit)
	return nil
}

// Check whether anything in the scene intersects the ray segment.
func (s *Scene) Occluded(ray *types.Ray) (bool, error) {
	s.RLock()
	defer s.RUnlock()

	if err := s.checkQueryable(); err != nil {
		return false, err
	}
	return s.accel.Occluded(ray), nil
}

// Get the statistics of each committed hierarchy in registration order.
func (s *Scene) Stats() ([]bvh.Stats, error) {
	a, err := s.Accel()
	if err != nil {
		return nil, err
	}

	switch v := a.(type) {
	case *bvh.BVH:
		return []bvh.Stats{v.Stats()}, nil
	case *accel.Composite:
		stats := make([]bvh.Stats, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if member, ok := v.Member(i).(*bvh.BVH); ok {
				stats = append(stats, member.Stats())
			}
		}
		return stats, nil
	}
	return nil, errors.Wrapf(accel.ErrUnknownVariant, "%T", a)
}

// Release the committed structure and all geometry buffers.
func (s *Scene) Release() {
	s.Lock()
	defer s.Unlock()

	if s.accel != nil {
		accel.Release(s.accel)
		s.accel = nil
	}
	for id, geom := range s.geometries {
		geom.Release()
		delete(s.geometries, id)
	}
	s.committed = false
	s.mapped = 0
}
