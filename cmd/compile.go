package cmd

import (
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/asset"
)

// Compile wavefront scenes into scene archives.
func CompileScene(ctx *cli.Context) error {
	setupLogging(ctx)

	d, err := openDevice(ctx, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	for idx := 0; idx < ctx.NArg(); idx++ {
		sceneFile := ctx.Args().Get(idx)
		if !strings.HasSuffix(sceneFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		s, err := asset.ReadScene(d, sceneFile)
		if err != nil {
			return err
		}

		stats, err := s.Stats()
		if err != nil {
			return err
		}
		for _, st := range stats {
			logger.Infof("hierarchy statistics:\n%s", st.Table())
		}

		zipFile := strings.TrimSuffix(sceneFile, ".obj") + ".zip"
		f, err := os.Create(zipFile)
		if err != nil {
			return err
		}
		err = d.SaveScene(s, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		logger.Noticef("wrote %s", zipFile)

		if err = d.DeleteScene(s); err != nil {
			return err
		}
	}

	return nil
}
