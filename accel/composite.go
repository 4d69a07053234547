package accel

import (
	"github.com/achilleasa/rtcore/types"
)

// Composite dispatches queries to an ordered list of member structures,
// one per primitive kind. Members are queried in registration order.
type Composite struct {
	members []Accel
	bounds  types.BBox
}

// Create a composite over members. The order of members is fixed for the
// lifetime of the composite.
func NewComposite(members ...Accel) *Composite {
	c := &Composite{bounds: types.EmptyBBox()}
	for _, member := range members {
		c.Add(member)
	}
	return c
}

// Register a member after all existing ones. Members must not be added
// once queries have started.
func (c *Composite) Add(member Accel) {
	c.members = append(c.members, member)
	c.bounds = c.bounds.Extend(member.Bounds())
}

// Get the number of members.
func (c *Composite) Len() int {
	return len(c.members)
}

// Get member i.
func (c *Composite) Member(i int) Accel {
	return c.members[i]
}

// Intersect queries every member and keeps the closest hit. A member's hit
// only replaces the current one when it is strictly nearer, so equal
// distance hits resolve to the earliest registered member.
func (c *Composite) Intersect(ray *types.Ray, hit *types.Hit) {
	for _, member := range c.members {
		memberRay := *ray
		memberHit := *hit
		member.Intersect(&memberRay, &memberHit)

		if memberHit.Valid() && memberHit.T < hit.T {
			*hit = memberHit
			ray.TFar = memberHit.T
		}
	}
}

// Occluded returns true as soon as any member reports an occluder.
func (c *Composite) Occluded(ray *types.Ray) bool {
	for _, member := range c.members {
		if member.Occluded(ray) {
			return true
		}
	}
	return false
}

// Bounds implements Accel.
func (c *Composite) Bounds() types.BBox {
	return c.bounds
}
