package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/rtcore"
)

// Build the device configuration from the global --config and --init flags.
// Settings in the init string override the config file.
func loadConfig(ctx *cli.Context) (rtcore.Config, error) {
	cfg := rtcore.DefaultConfig()
	var err error
	if file := ctx.GlobalString("config"); file != "" {
		if cfg, err = rtcore.LoadConfig(file); err != nil {
			return cfg, err
		}
	}

	if overrides := ctx.GlobalString("init"); overrides != "" {
		return cfg.Override(overrides)
	}
	return cfg, nil
}

// Create a device from the command line flags. If reg is not nil, device
// memory metrics are registered with it.
func openDevice(ctx *cli.Context, reg prometheus.Registerer) (*rtcore.Device, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Registerer = reg

	d, err := rtcore.NewDevice(cfg)
	if err != nil {
		return nil, err
	}
	d.SetErrorFunction(func(code rtcore.Code, msg string) {
		logger.Debugf("device error %s: %s", code, msg)
	})
	return d, nil
}
