package accel

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/prim"
)

var (
	ErrNotComposite   = errors.New("accel: structure is not a composite")
	ErrAccelNotFound  = errors.New("accel: no hierarchy of the requested kind")
	ErrUnknownVariant = errors.New("accel: unknown acceleration structure variant")
)

// Get a as a composite. Fails with ErrNotComposite when a is a single
// hierarchy.
func AsComposite(a Accel) (*Composite, error) {
	switch v := a.(type) {
	case *Composite:
		return v, nil
	case *bvh.BVH:
		return nil, errors.Wrapf(ErrNotComposite, "got single %s hierarchy", v.Kind())
	}
	return nil, errors.Wrapf(ErrUnknownVariant, "%T", a)
}

// Find the first member hierarchy of the given kind.
func (c *Composite) Find(kind prim.Kind) (*bvh.BVH, error) {
	for _, member := range c.members {
		if hierarchy, ok := member.(*bvh.BVH); ok && hierarchy.Kind() == kind {
			return hierarchy, nil
		}
	}
	return nil, errors.Wrapf(ErrAccelNotFound, "%s", kind)
}

// Locate the hierarchy of the given kind inside a. Both committed shapes
// are handled: a single hierarchy matches if its kind agrees and a
// composite is searched in registration order.
func FindBVH(a Accel, kind prim.Kind) (*bvh.BVH, error) {
	switch v := a.(type) {
	case *bvh.BVH:
		if v.Kind() != kind {
			return nil, errors.Wrapf(ErrAccelNotFound, "%s (single hierarchy is %s)", kind, v.Kind())
		}
		return v, nil
	case *Composite:
		return v.Find(kind)
	case nil:
		return nil, errors.Wrapf(ErrAccelNotFound, "%s (no committed structure)", kind)
	}
	return nil, errors.Wrapf(ErrUnknownVariant, "%T", a)
}

// Release every hierarchy held by a.
func Release(a Accel) {
	switch v := a.(type) {
	case *bvh.BVH:
		v.Release()
	case *Composite:
		for _, member := range v.members {
			Release(member)
		}
	}
}
