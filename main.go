package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "rtcore"
	app.Usage = "build, inspect and trace ray tracing acceleration structures"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load device settings from a TOML file",
		},
		cli.StringFlag{
			Name:  "init",
			Usage: `device settings as comma separated key=value pairs (e.g. "tri_accel=bvh4.triangle4,threads=4")`,
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "display CPU capabilities and device settings",
			Action: cmd.ShowInfo,
		},
		{
			Name:  "compile",
			Usage: "compile wavefront scenes into scene archives",
			Description: `
Parse a scene definition from a wavefront obj file, build one BVH per
primitive kind and write the committed hierarchies to a zip archive
that can be supplied to the other commands instead of the obj file.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Action:    cmd.CompileScene,
		},
		{
			Name:      "dump",
			Usage:     "print the nodes and leaves of a scene hierarchy",
			ArgsUsage: "scene_file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "kind, k",
					Value: "bvh4.triangle4",
					Usage: "the hierarchy to print (bvh4.triangle4 or bvh4.bezier4)",
				},
			},
			Action: cmd.DumpHierarchy,
		},
		{
			Name:      "stats",
			Usage:     "display statistics for each scene hierarchy",
			ArgsUsage: "scene_file",
			Action:    cmd.ShowSceneStats,
		},
		{
			Name:        "trace",
			Usage:       "render a still frame of a scene",
			Description: `Cast one primary ray per pixel and shade hits by facing ratio, normal or depth.`,
			ArgsUsage:   "scene_file",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 0,
					Usage: "number of parallel tracers; 0 uses one per CPU",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 45,
					Usage: "vertical field of view in degrees",
				},
				cli.StringFlag{
					Name:  "shading",
					Value: "facing",
					Usage: "shading mode (facing, normal or depth)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
				cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve prometheus metrics on this address while tracing",
				},
			},
			Action: cmd.TraceFrame,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
