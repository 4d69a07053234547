package cmd

import (
	"context"
	"image/png"
	"net/http"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/asset"
	"github.com/achilleasa/rtcore/renderer"
	"github.com/achilleasa/rtcore/tracer"
)

// Render a still frame of a scene.
func TraceFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}
	shading, err := tracer.ParseShading(ctx.String("shading"))
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	if addr := ctx.String("metrics-addr"); addr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		go serveMetrics(addr, reg)
	}

	d, err := openDevice(ctx, registerer(reg))
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := asset.ReadScene(d, ctx.Args().First())
	if err != nil {
		return err
	}
	a, err := d.Accel(s)
	if err != nil {
		return err
	}

	camera := tracer.NewCamera(float32(ctx.Float64("fov")))
	camera.Frame(a.Bounds())

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	frame, stats, err := renderer.Render(runCtx, a, camera, renderer.Options{
		FrameW:     uint32(ctx.Int("width")),
		FrameH:     uint32(ctx.Int("height")),
		Workers:    ctx.Int("workers"),
		Shading:    shading,
		Registerer: registerer(reg),
	})
	if err != nil {
		return err
	}
	logger.Noticef("frame statistics\n%s", stats.Table())

	imgFile := ctx.String("out")
	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = png.Encode(f, frame); err != nil {
		return err
	}
	logger.Noticef("wrote frame to %s", imgFile)
	return nil
}

// Avoid passing a typed nil registry as a non-nil interface.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Noticef("serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server: %s", err)
	}
}
