package renderer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/achilleasa/rtcore/tracer"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of tracers rendering blocks in parallel. Zero selects one
	// tracer per CPU.
	Workers int

	// How hits are turned into pixel colors.
	Shading tracer.Shading

	// Distance mapped to black by depth shading. Zero selects the extent
	// of the scene bounds.
	MaxDepth float32

	// If set, render metrics are registered here.
	Registerer prometheus.Registerer
}
