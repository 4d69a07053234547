package accel

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// A member reporting a fixed hit distance.
type stubAccel struct {
	name   string
	geomID uint32
	dist   float32
	calls  *[]string
}

func (s *stubAccel) Intersect(ray *types.Ray, hit *types.Hit) {
	*s.calls = append(*s.calls, s.name)
	if s.dist < ray.TNear || s.dist > ray.TFar || s.dist >= hit.T {
		return
	}
	ray.TFar = s.dist
	hit.T = s.dist
	hit.GeomID = s.geomID
	hit.PrimID = 0
}

func (s *stubAccel) Occluded(ray *types.Ray) bool {
	*s.calls = append(*s.calls, s.name)
	return s.dist >= ray.TNear && s.dist <= ray.TFar
}

func (s *stubAccel) Bounds() types.BBox {
	return types.BBox{{0, 0, float32(s.geomID)}, {1, 1, float32(s.geomID) + 1}}
}

func TestCompositeClosestHit(t *testing.T) {
	inf := float32(1e30)

	specs := []struct {
		dists     [3]float32
		expGeomID uint32
		expT      float32
	}{
		{[3]float32{5, 3, 4}, 1, 3},
		{[3]float32{2, 3, 4}, 0, 2},
		// ties resolve to the earliest member
		{[3]float32{4, 3, 3}, 1, 3},
		{[3]float32{3, 3, 3}, 0, 3},
		{[3]float32{inf, inf, 1}, 2, 1},
	}

	for index, spec := range specs {
		var calls []string
		c := NewComposite(
			&stubAccel{name: "A", geomID: 0, dist: spec.dists[0], calls: &calls},
			&stubAccel{name: "B", geomID: 1, dist: spec.dists[1], calls: &calls},
			&stubAccel{name: "C", geomID: 2, dist: spec.dists[2], calls: &calls},
		)

		ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
		hit := types.NewHit()
		c.Intersect(&ray, &hit)

		if hit.GeomID != spec.expGeomID || hit.T != spec.expT {
			t.Fatalf("[spec %d] expected hit on geometry %d at %f; got geometry %d at %f", index, spec.expGeomID, spec.expT, hit.GeomID, hit.T)
		}
		if ray.TFar != spec.expT {
			t.Fatalf("[spec %d] expected ray.TFar to be %f; got %f", index, spec.expT, ray.TFar)
		}
		if len(calls) != 3 || calls[0] != "A" || calls[1] != "B" || calls[2] != "C" {
			t.Fatalf("[spec %d] expected members to be queried in order [A B C]; got %v", index, calls)
		}
	}
}

func TestCompositeIsDeterministic(t *testing.T) {
	var calls []string
	c := NewComposite(
		&stubAccel{name: "A", geomID: 0, dist: 7, calls: &calls},
		&stubAccel{name: "B", geomID: 1, dist: 7, calls: &calls},
	)

	for i := 0; i < 100; i++ {
		ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
		hit := types.NewHit()
		c.Intersect(&ray, &hit)
		if hit.GeomID != 0 {
			t.Fatalf("[run %d] expected tie to resolve to the first member; got geometry %d", i, hit.GeomID)
		}
	}
}

func TestCompositeAnyHitShortCircuits(t *testing.T) {
	var calls []string
	c := NewComposite(
		&stubAccel{name: "A", geomID: 0, dist: 100, calls: &calls},
		&stubAccel{name: "B", geomID: 1, dist: 2, calls: &calls},
		&stubAccel{name: "C", geomID: 2, dist: 1, calls: &calls},
	)

	ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	ray.TFar = 10
	if !c.Occluded(&ray) {
		t.Fatal("expected ray to be occluded")
	}
	if len(calls) != 2 || calls[1] != "B" {
		t.Fatalf("expected query to stop at member B; got %v", calls)
	}

	calls = calls[:0]
	ray.TFar = 0.5
	if c.Occluded(&ray) {
		t.Fatal("expected short ray to be unoccluded")
	}
	if len(calls) != 3 {
		t.Fatalf("expected all members to be queried; got %v", calls)
	}
}

func TestCompositeBounds(t *testing.T) {
	var calls []string
	c := NewComposite(
		&stubAccel{geomID: 0, calls: &calls},
		&stubAccel{geomID: 4, calls: &calls},
	)
	if exp := (types.BBox{{0, 0, 0}, {1, 1, 5}}); c.Bounds() != exp {
		t.Fatalf("expected bounds %v; got %v", exp, c.Bounds())
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 members; got %d", c.Len())
	}
}

func TestLookup(t *testing.T) {
	tri, err := bvh.NewEmpty(prim.KindTriangle4, nil)
	if err != nil {
		t.Fatal(err)
	}
	hair, err := bvh.NewEmpty(prim.KindBezier4, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Single hierarchy
	if _, err = AsComposite(tri); errors.Cause(err) != ErrNotComposite {
		t.Fatalf("expected ErrNotComposite; got %v", err)
	}
	if found, err := FindBVH(tri, prim.KindTriangle4); err != nil || found != tri {
		t.Fatalf("expected to find the single triangle hierarchy; got %v, %v", found, err)
	}
	if _, err = FindBVH(tri, prim.KindBezier4); errors.Cause(err) != ErrAccelNotFound {
		t.Fatalf("expected ErrAccelNotFound; got %v", err)
	}

	// Composite
	c := NewComposite(tri, hair)
	if got, err := AsComposite(c); err != nil || got != c {
		t.Fatalf("expected composite; got %v, %v", got, err)
	}
	if found, err := FindBVH(c, prim.KindBezier4); err != nil || found != hair {
		t.Fatalf("expected to find the hair hierarchy; got %v, %v", found, err)
	}

	triOnly := NewComposite(tri)
	if _, err = triOnly.Find(prim.KindBezier4); errors.Cause(err) != ErrAccelNotFound {
		t.Fatalf("expected ErrAccelNotFound; got %v", err)
	}

	// Unknown variants and missing structures fail explicitly
	var calls []string
	if _, err = FindBVH(&stubAccel{calls: &calls}, prim.KindTriangle4); errors.Cause(err) != ErrUnknownVariant {
		t.Fatalf("expected ErrUnknownVariant; got %v", err)
	}
	if _, err = AsComposite(&stubAccel{calls: &calls}); errors.Cause(err) != ErrUnknownVariant {
		t.Fatalf("expected ErrUnknownVariant; got %v", err)
	}
	if _, err = FindBVH(nil, prim.KindTriangle4); errors.Cause(err) != ErrAccelNotFound {
		t.Fatalf("expected ErrAccelNotFound; got %v", err)
	}

	Release(c)
}
