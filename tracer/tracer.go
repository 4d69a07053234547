package tracer

import (
	"context"
	"image"
	"time"
)

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// The frame receiving the traced pixels. Tracers only write the rows
	// of their block.
	Frame *image.RGBA

	Camera  *Camera
	Shading Shading

	// Hits further than this are clamped when using depth shading.
	MaxDepth float32
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The time for rendering this block.
	BlockTime time.Duration

	// Primary rays cast and rays that hit something.
	Rays uint64
	Hits uint64
}

type Tracer interface {
	// Get tracer id.
	ID() string

	// Get the tracer's computation speed estimate relative to the other
	// tracers.
	SpeedEstimate() float32

	// Trace a block. Returns early with the context error if ctx is
	// cancelled.
	Trace(ctx context.Context, req BlockRequest) error

	// Retrieve last block statistics.
	Stats() *Stats
}
