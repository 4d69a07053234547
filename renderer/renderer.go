package renderer

import (
	"context"
	"image"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/tracer"
)

type Renderer interface {
	// Render frame.
	Render(ctx context.Context) (*image.RGBA, error)

	// Get render statistics for the last frame.
	Stats() FrameStats
}

// A renderer that splits each frame into row blocks traced in parallel by
// a pool of CPU tracers sharing one acceleration structure.
type defaultRenderer struct {
	logger log.Logger

	accel     accel.Accel
	camera    *tracer.Camera
	scheduler tracer.BlockScheduler
	tracers   []tracer.Tracer
	opts      Options
	metrics   *metrics

	stats FrameStats
}

// Create a new renderer for a committed acceleration structure.
func NewDefault(a accel.Accel, camera *tracer.Camera, scheduler tracer.BlockScheduler, opts Options) (Renderer, error) {
	if a == nil {
		return nil, ErrSceneNotDefined
	}
	if camera == nil {
		return nil, ErrCameraNotDefined
	}
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, ErrInvalidFrameSize
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Each tracer needs at least one row.
	if workers > int(opts.FrameH) {
		workers = int(opts.FrameH)
	}

	if opts.MaxDepth <= 0 {
		bounds := a.Bounds()
		if !bounds.IsEmpty() {
			opts.MaxDepth = bounds.Size().Len() + camera.Position.Sub(bounds.Center()).Len()
		}
		if opts.MaxDepth <= 0 {
			opts.MaxDepth = 1
		}
	}

	r := &defaultRenderer{
		logger:    log.New("renderer"),
		accel:     a,
		camera:    camera,
		scheduler: scheduler,
		opts:      opts,
	}
	if opts.Registerer != nil {
		r.metrics = newMetrics(opts.Registerer)
	}
	for i := 0; i < workers; i++ {
		r.tracers = append(r.tracers, tracer.NewCPUTracer(i, a))
	}

	camera.SetupProjection(float32(opts.FrameW) / float32(opts.FrameH))
	return r, nil
}

// Render a frame.
func (r *defaultRenderer) Render(ctx context.Context) (*image.RGBA, error) {
	if len(r.tracers) == 0 {
		return nil, ErrNoTracers
	}

	start := time.Now()
	frame := image.NewRGBA(image.Rect(0, 0, int(r.opts.FrameW), int(r.opts.FrameH)))
	blockAssignment := r.scheduler.Schedule(r.tracers, r.opts.FrameH)

	group, groupCtx := errgroup.WithContext(ctx)
	var blockY uint32
	for idx, tr := range r.tracers {
		tr := tr
		req := tracer.BlockRequest{
			BlockY:   blockY,
			BlockH:   blockAssignment[idx],
			Frame:    frame,
			Camera:   r.camera,
			Shading:  r.opts.Shading,
			MaxDepth: r.opts.MaxDepth,
		}
		blockY += req.BlockH

		group.Go(func() error {
			return tr.Trace(groupCtx, req)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	r.updateStats(time.Since(start))
	r.logger.Debugf("rendered %dx%d frame in %d ms", r.opts.FrameW, r.opts.FrameH, r.stats.RenderTime.Nanoseconds()/1e6)
	return frame, nil
}

func (r *defaultRenderer) updateStats(renderTime time.Duration) {
	r.stats = FrameStats{
		Tracers:    make([]TracerStat, 0, len(r.tracers)),
		RenderTime: renderTime,
	}
	for _, tr := range r.tracers {
		stats := tr.Stats()
		r.stats.Tracers = append(r.stats.Tracers, TracerStat{
			Id:           tr.ID(),
			BlockH:       stats.BlockH,
			FramePercent: 100.0 * float32(stats.BlockH) / float32(r.opts.FrameH),
			RenderTime:   stats.BlockTime,
			Rays:         stats.Rays,
			Hits:         stats.Hits,
		})
	}
	if r.metrics != nil {
		r.metrics.observe(r.stats)
	}
}

// Get render statistics for the last frame.
func (r *defaultRenderer) Stats() FrameStats {
	return r.stats
}

// Render a single frame of a with the naive block scheduler.
func Render(ctx context.Context, a accel.Accel, camera *tracer.Camera, opts Options) (*image.RGBA, FrameStats, error) {
	r, err := NewDefault(a, camera, tracer.NaiveScheduler(), opts)
	if err != nil {
		return nil, FrameStats{}, err
	}
	frame, err := r.Render(ctx)
	if err != nil {
		return nil, FrameStats{}, err
	}
	return frame, r.Stats(), nil
}
