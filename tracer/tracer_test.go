package tracer

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/achilleasa/rtcore/types"
)

// A test structure with a single plane at z = depth facing +Z.
type planeAccel struct {
	depth float32
}

func (p planeAccel) Intersect(ray *types.Ray, hit *types.Hit) {
	if ray.Dir[2] == 0 {
		return
	}
	t := (p.depth - ray.Org[2]) / ray.Dir[2]
	if t < ray.TNear || t > ray.TFar {
		return
	}
	ray.TFar = t
	*hit = types.Hit{GeomID: 0, PrimID: 0, T: t, Ng: types.XYZ(0, 0, 1)}
}

func (p planeAccel) Occluded(ray *types.Ray) bool {
	hit := types.NewHit()
	p.Intersect(ray, &hit)
	return hit.Valid()
}

func (p planeAccel) Bounds() types.BBox {
	return types.BBox{types.XYZ(-1e3, -1e3, p.depth), types.XYZ(1e3, 1e3, p.depth)}
}

func TestCameraFrustrum(t *testing.T) {
	c := NewCamera(90)
	c.SetupProjection(2)

	expCorners := Frustrum{
		types.XYZ(-2, 1, -1),
		types.XYZ(2, 1, -1),
		types.XYZ(-2, -1, -1),
		types.XYZ(2, -1, -1),
	}
	for i, exp := range expCorners {
		if exp.Sub(c.Frustrum[i]).Len() > 1e-5 {
			t.Fatalf("expected corner %d to be %v; got %v", i, exp, c.Frustrum[i])
		}
	}

	c.InvertY = true
	c.Update()
	if c.Frustrum[0][1] >= 0 {
		t.Fatalf("expected inverted top-left corner to point down; got %v", c.Frustrum[0])
	}

	// The center pixel of an odd sized frame looks straight ahead.
	ray := c.Ray(1, 1, 3, 3)
	if ray.Dir.Sub(types.XYZ(0, 0, -1)).Len() > 1e-5 {
		t.Fatalf("expected center ray to point along -Z; got %v", ray.Dir)
	}
	if math.Abs(float64(ray.Dir.Len())-1) > 1e-5 {
		t.Fatalf("expected normalized ray direction; got length %f", ray.Dir.Len())
	}
}

func TestCameraFrame(t *testing.T) {
	c := NewCamera(60)
	box := types.BBox{types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1)}
	c.Frame(box)

	if c.LookAt != box.Center() {
		t.Fatalf("expected camera to look at %v; got %v", box.Center(), c.LookAt)
	}
	dist := c.Position.Sub(c.LookAt).Len()
	if exp := float32(math.Sqrt(3) / 0.5); math.Abs(float64(dist-exp)) > 1e-4 {
		t.Fatalf("expected camera distance %f; got %f", exp, dist)
	}
}

func TestCPUTracer(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	cam := NewCamera(90)
	cam.Position = types.XYZ(0, 0, 5)
	cam.LookAt = types.XYZ(0, 0, 0)
	cam.Update()

	tr := NewCPUTracer(0, planeAccel{depth: 0})
	if tr.ID() != "cpu-00" {
		t.Fatalf("unexpected tracer id %q", tr.ID())
	}

	err := tr.Trace(context.Background(), BlockRequest{
		BlockY:  1,
		BlockH:  2,
		Frame:   frame,
		Camera:  cam,
		Shading: ShadeNormal,
	})
	if err != nil {
		t.Fatal(err)
	}

	stats := tr.Stats()
	if stats.BlockH != 2 || stats.Rays != 8 || stats.Hits != 8 {
		t.Fatalf("unexpected stats %+v", *stats)
	}

	// Rows outside the block are left untouched.
	if px := frame.RGBAAt(0, 0); px.A != 0 {
		t.Fatalf("expected row 0 to be untouched; got %v", px)
	}
	if px := frame.RGBAAt(0, 1); px.B != 255 || px.A != 255 {
		t.Fatalf("expected +Z normal to map to blue; got %v", px)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err = tr.Trace(ctx, BlockRequest{BlockH: 1, Frame: frame, Camera: cam}); err != context.Canceled {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
}

func TestShade(t *testing.T) {
	ray := types.NewRay(types.XYZ(0, 0, 5), types.XYZ(0, 0, -1))
	hit := types.Hit{GeomID: 1, T: 2.5, Ng: types.XYZ(0, 0, -3)}
	miss := types.NewHit()

	specs := []struct {
		mode Shading
		hit  *types.Hit
		exp  [4]uint8
	}{
		{ShadeFacing, &hit, [4]uint8{255, 255, 255, 255}},
		{ShadeNormal, &hit, [4]uint8{128, 128, 255, 255}},
		{ShadeDepth, &hit, [4]uint8{128, 128, 128, 255}},
		{ShadeNormal, &miss, [4]uint8{0, 0, 0, 255}},
	}

	for specIndex, spec := range specs {
		c := shade(spec.mode, &ray, spec.hit, 5)
		got := [4]uint8{c.R, c.G, c.B, c.A}
		if got != spec.exp {
			t.Errorf("[spec %d] expected color %v; got %v", specIndex, spec.exp, got)
		}
	}

	if _, err := ParseShading("normal"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseShading("phong"); err == nil {
		t.Fatal("expected error")
	}
}
