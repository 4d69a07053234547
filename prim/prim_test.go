package prim

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/types"
)

type triangleSource map[Ref][3]types.Vec3

func (s triangleSource) Triangle(geomID, primID uint32) (v0, v1, v2 types.Vec3) {
	tri := s[Ref{geomID, primID}]
	return tri[0], tri[1], tri[2]
}

type curveSource map[Ref][4]types.Vec4

func (s curveSource) Curve(geomID, primID uint32) [4]types.Vec4 {
	return s[Ref{geomID, primID}]
}

// A unit triangle on the z = depth plane.
func quadTriangle(depth float32) [3]types.Vec3 {
	return [3]types.Vec3{
		{-1, -1, depth},
		{1, -1, depth},
		{0, 1, depth},
	}
}

func TestKindNames(t *testing.T) {
	specs := []struct {
		name string
		kind Kind
	}{
		{"bvh4.triangle4", KindTriangle4},
		{"bvh4.bezier4", KindBezier4},
	}

	for index, spec := range specs {
		kind, err := ParseKind(spec.name)
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if kind != spec.kind {
			t.Fatalf("[spec %d] expected kind %d; got %d", index, spec.kind, kind)
		}
		if kind.String() != spec.name {
			t.Fatalf("[spec %d] expected name %q; got %q", index, spec.name, kind.String())
		}
	}

	if kind, err := ParseKind("bvh4.triangle4v"); err != nil || kind != KindTriangle4 {
		t.Fatalf("expected bvh4.triangle4v to select %s; got %s (%v)", KindTriangle4, kind, err)
	}
	if _, err := ParseKind("bvh8.quad"); errors.Cause(err) != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind; got %v", err)
	}
}

func TestTriangleLeavesPacking(t *testing.T) {
	src := triangleSource{
		{0, 0}: quadTriangle(5),
		{0, 1}: quadTriangle(3),
		{2, 7}: quadTriangle(4),
	}
	mon := memory.NewCountingMonitor()
	leaves, err := PackTriangles(mon, [][]Ref{{{0, 0}, {0, 1}}, {{2, 7}}}, src)
	if err != nil {
		t.Fatal(err)
	}

	if leaves.Len() != 2 {
		t.Fatalf("expected 2 blocks; got %d", leaves.Len())
	}
	if geomID, primID := leaves.Lane(1, 0); geomID != 2 || primID != 7 {
		t.Fatalf("expected lane ids (2, 7); got (%d, %d)", geomID, primID)
	}

	// Unused lanes are zero-filled and carry invalid ids
	for j := 1; j < N; j++ {
		geomID, primID := leaves.Lane(1, j)
		if geomID != types.InvalidID || primID != types.InvalidID {
			t.Fatalf("expected unused lane %d to carry invalid ids; got (%d, %d)", j, geomID, primID)
		}
		if v := leaves.Block(1).V2.Lane(j); v != (types.Vec3{}) {
			t.Fatalf("expected unused lane %d to be zero-filled; got %v", j, v)
		}
	}

	box := leaves.LaneBounds(0, 1)
	if exp := (types.BBox{{-1, -1, 3}, {1, 1, 3}}); box != exp {
		t.Fatalf("expected lane bounds %v; got %v", exp, box)
	}

	leaves.Release()
	if mon.Live() != 0 {
		t.Fatalf("expected release to return all memory; got %d live bytes", mon.Live())
	}
}

func TestTriangleIntersect(t *testing.T) {
	src := triangleSource{
		{0, 0}: quadTriangle(5),
		{0, 1}: quadTriangle(3),
		{0, 2}: quadTriangle(3),
	}
	leaves, err := PackTriangles(nil, [][]Ref{{{0, 0}, {0, 1}, {0, 2}}}, src)
	if err != nil {
		t.Fatal(err)
	}
	defer leaves.Release()

	ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	hit := types.NewHit()
	leaves.Intersect(0, 3, &ray, &hit)

	if !hit.Valid() {
		t.Fatal("expected a hit")
	}
	if hit.PrimID != 1 {
		t.Fatalf("expected the tie to resolve to the earlier lane (prim 1); got prim %d", hit.PrimID)
	}
	if hit.T != 3 || ray.TFar != 3 {
		t.Fatalf("expected hit distance 3 and shrunk ray; got t = %f, tfar = %f", hit.T, ray.TFar)
	}
	if hit.Ng[2] == 0 {
		t.Fatalf("expected geometric normal along z; got %v", hit.Ng)
	}

	// Lane count bounds iteration
	ray = types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	hit = types.NewHit()
	leaves.Intersect(0, 1, &ray, &hit)
	if hit.PrimID != 0 || hit.T != 5 {
		t.Fatalf("expected only lane 0 to be tested; got prim %d at %f", hit.PrimID, hit.T)
	}

	// Missing ray
	ray = types.NewRay(types.XYZ(5, 5, 0), types.XYZ(0, 0, 1))
	if leaves.Occluded(0, 3, &ray) {
		t.Fatal("expected ray to miss")
	}

	// Segment ending before the triangles
	ray = types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	ray.TFar = 2
	if leaves.Occluded(0, 3, &ray) {
		t.Fatal("expected short ray segment to be unoccluded")
	}
	ray.TFar = 10
	if !leaves.Occluded(0, 3, &ray) {
		t.Fatal("expected ray to be occluded")
	}
}

func TestTriangleIntersectSmallScale(t *testing.T) {
	specs := []struct {
		size   float32
		dirLen float32
	}{
		{1e-5, 1},
		{1, 1e-3},
		{1e-5, 1e-3},
		{1e3, 1e2},
	}

	for specIndex, spec := range specs {
		s := spec.size
		src := triangleSource{
			{0, 0}: {{-s, -s, 2 * s}, {s, -s, 2 * s}, {0, s, 2 * s}},
		}
		leaves, err := PackTriangles(nil, [][]Ref{{{0, 0}}}, src)
		if err != nil {
			t.Fatal(err)
		}

		ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, spec.dirLen))
		hit := types.NewHit()
		leaves.Intersect(0, 1, &ray, &hit)
		if !hit.Valid() {
			t.Errorf("[spec %d] expected a hit for triangle size %g and direction length %g", specIndex, spec.size, spec.dirLen)
		} else if exp := 2 * s / spec.dirLen; math.Abs(float64(hit.T-exp)) > 1e-3*float64(exp) {
			t.Errorf("[spec %d] expected hit distance %g; got %g", specIndex, exp, hit.T)
		}

		// A ray in the triangle plane must still be rejected
		ray = types.NewRay(types.XYZ(-2*s, 0, 2*s), types.XYZ(spec.dirLen, 0, 0))
		if leaves.Occluded(0, 1, &ray) {
			t.Errorf("[spec %d] expected ray parallel to the triangle to miss", specIndex)
		}
		leaves.Release()
	}
}

func TestBezierIntersect(t *testing.T) {
	// A straight hair along the x axis at z = 4 with radius 0.1
	src := curveSource{
		{1, 0}: {
			{-1, 0, 4, 0.1},
			{-0.3, 0, 4, 0.1},
			{0.3, 0, 4, 0.1},
			{1, 0, 4, 0.1},
		},
	}
	mon := memory.NewCountingMonitor()
	leaves, err := PackCurves(mon, [][]Ref{{{1, 0}}}, src)
	if err != nil {
		t.Fatal(err)
	}

	box := leaves.LaneBounds(0, 0)
	if !box.Contains(types.BBox{{-0.9, -0.05, 3.95}, {0.9, 0.05, 4.05}}) {
		t.Fatalf("expected lane bounds to include the hair radius; got %v", box)
	}

	ray := types.NewRay(types.XYZ(0.5, 0.05, 0), types.XYZ(0, 0, 1))
	hit := types.NewHit()
	leaves.Intersect(0, 1, &ray, &hit)
	if !hit.Valid() {
		t.Fatal("expected ray to hit the hair")
	}
	if hit.GeomID != 1 || hit.PrimID != 0 {
		t.Fatalf("expected hit ids (1, 0); got (%d, %d)", hit.GeomID, hit.PrimID)
	}
	if hit.T < 3.8 || hit.T > 4.01 {
		t.Fatalf("expected hit distance close to 4; got %f", hit.T)
	}
	if hit.U < 0.5 || hit.U > 1 {
		t.Fatalf("expected curve parameter in the second half of the curve; got %f", hit.U)
	}

	ray = types.NewRay(types.XYZ(0.5, 0.5, 0), types.XYZ(0, 0, 1))
	if leaves.Occluded(0, 1, &ray) {
		t.Fatal("expected ray outside the hair radius to miss")
	}

	leaves.Release()
	if mon.Live() != 0 {
		t.Fatalf("expected release to return all memory; got %d live bytes", mon.Live())
	}
}

func TestLeavesCodec(t *testing.T) {
	src := triangleSource{{3, 9}: quadTriangle(1)}
	leaves, err := PackTriangles(nil, [][]Ref{{{3, 9}}}, src)
	if err != nil {
		t.Fatal(err)
	}
	defer leaves.Release()

	var buf bytes.Buffer
	if err = leaves.Encode(gob.NewEncoder(&buf)); err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeLeaves(KindTriangle4, nil, gob.NewDecoder(&buf))
	if err != nil {
		t.Fatal(err)
	}
	defer decoded.Release()

	if decoded.Kind() != KindTriangle4 || decoded.Len() != 1 {
		t.Fatalf("expected a single triangle block; got %d blocks of kind %s", decoded.Len(), decoded.Kind())
	}
	if box, exp := decoded.LaneBounds(0, 0), leaves.LaneBounds(0, 0); box != exp {
		t.Fatalf("expected decoded bounds %v; got %v", exp, box)
	}

	if _, err = NewLeaves(Kind(42), nil, 1); errors.Cause(err) != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind; got %v", err)
	}
}
