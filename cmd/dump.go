package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/asset"
	"github.com/achilleasa/rtcore/prim"
)

// Print the hierarchy of one primitive kind of a scene.
func DumpHierarchy(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}
	kind, err := prim.ParseKind(ctx.String("kind"))
	if err != nil {
		return err
	}

	d, err := openDevice(ctx, nil)
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
	hierarchy, err := accel.FindBVH(a, kind)
	if err != nil {
		return err
	}
	return hierarchy.Print(os.Stdout)
}

// Display statistics for each hierarchy of a scene.
func ShowSceneStats(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	d, err := openDevice(ctx, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := asset.ReadScene(d, ctx.Args().First())
	if err != nil {
		return err
	}
	stats, err := s.Stats()
	if err != nil {
		return err
	}

	for _, st := range stats {
		logger.Noticef("%s hierarchy\n%s", st.Kind, st.Table())
	}
	logger.Noticef("device memory: %d bytes live, %d bytes peak", d.MemoryUsage(), d.PeakMemoryUsage())
	return nil
}
