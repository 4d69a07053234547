package tracer

import (
	"context"
	"fmt"
	"time"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/types"
)

// A tracer casting primary rays against an acceleration structure on the
// calling goroutine. Several tracers may share the same structure.
type cpuTracer struct {
	id    string
	accel accel.Accel
	stats Stats
}

// Create a CPU tracer for a committed acceleration structure.
func NewCPUTracer(index int, a accel.Accel) Tracer {
	return &cpuTracer{
		id:    fmt.Sprintf("cpu-%02d", index),
		accel: a,
	}
}

func (tr *cpuTracer) ID() string {
	return tr.id
}

func (tr *cpuTracer) SpeedEstimate() float32 {
	return 1.0
}

func (tr *cpuTracer) Stats() *Stats {
	return &tr.stats
}

// Trace all pixels in the requested block.
func (tr *cpuTracer) Trace(ctx context.Context, req BlockRequest) error {
	start := time.Now()
	tr.stats = Stats{BlockH: req.BlockH}

	bounds := req.Frame.Bounds()
	frameW, frameH := uint32(bounds.Dx()), uint32(bounds.Dy())
	for y := req.BlockY; y < req.BlockY+req.BlockH; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for x := uint32(0); x < frameW; x++ {
			ray := req.Camera.Ray(x, y, frameW, frameH)
			hit := types.NewHit()
			tr.accel.Intersect(&ray, &hit)

			tr.stats.Rays++
			if hit.Valid() {
				tr.stats.Hits++
			}
			req.Frame.SetRGBA(bounds.Min.X+int(x), bounds.Min.Y+int(y), shade(req.Shading, &ray, &hit, req.MaxDepth))
		}
	}

	tr.stats.BlockTime = time.Since(start)
	return nil
}
