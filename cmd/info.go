package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/rtcore/rtcore"
)

// Display CPU capabilities and the effective device configuration.
func ShowInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nCPU\n  Name     %s\n  Vendor   %s\n  Cores    %d physical, %d logical\n  ISA      %s\n\n",
		cpuid.CPU.BrandName,
		cpuid.CPU.VendorString,
		cpuid.CPU.PhysicalCores,
		cpuid.CPU.LogicalCores,
		strings.Join(rtcore.SupportedISAs(), " "),
	))

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"tri_accel", cfg.TriAccel})
	table.Append([]string{"hair_accel", cfg.HairAccel})
	table.Append([]string{"isa", valueOr(cfg.ISA, "native")})
	table.Append([]string{"verbose", fmt.Sprint(cfg.Verbose)})
	table.Append([]string{"memory_limit", limitOr(cfg.MemoryLimit.String(), int64(cfg.MemoryLimit))})
	table.Append([]string{"max_leaf_size", fmt.Sprint(cfg.MaxLeafSize)})
	table.Append([]string{"build_threads", limitOr(fmt.Sprint(cfg.BuildThreads), int64(cfg.BuildThreads))})
	table.Render()

	logger.Notice(buf.String())
	return nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func limitOr(value string, limit int64) string {
	if limit == 0 {
		return "unlimited"
	}
	return value
}
