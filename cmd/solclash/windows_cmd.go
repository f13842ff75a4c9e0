package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"solclash/internal/arena"
	"solclash/internal/fault"
	"solclash/internal/window"
)

func newWindowsCmd() *cobra.Command {
	var (
		arenaPath string
		barsPath  string
		count     int
	)

	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Show which windows a round would select from a tape",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWindows(cmd.Context(), cmd.OutOrStdout(), arenaPath, barsPath, count)
		},
	}
	cmd.Flags().StringVar(&arenaPath, "arena", "", "arena configuration file")
	cmd.Flags().StringVar(&barsPath, "bars", "", "bar tape file (JSON or JSONL)")
	cmd.Flags().IntVar(&count, "count", 0, "windows to select, defaults to the arena's windows_per_round")
	_ = cmd.MarkFlagRequired("arena")
	return cmd
}

func runWindows(ctx context.Context, w io.Writer, arenaPath, barsPath string, count int) error {
	cfg, err := arena.Load(arenaPath)
	if err != nil {
		return err
	}
	tp, err := arena.LoadTape(ctx, cfg, barsPath, nil)
	if err != nil {
		return err
	}

	all := window.Enumerate(len(tp.Bars), cfg.WindowDurationBars, cfg.MaxWindowOverlapPct)
	if len(all) == 0 {
		return fault.New(fault.NoWindows, "no window of %d bars fits on a %d-bar tape",
			cfg.WindowDurationBars, len(tp.Bars))
	}

	if count <= 0 {
		count = cfg.WindowsPerRound
	}
	scfg := cfg.WindowSampling
	scfg.Seed = cfg.SamplingSeed()
	selected := window.Sample(all, tp.Bars, scfg, count)

	fmt.Fprintf(w, "%d windows enumerated, %d selected\n", len(all), len(selected))
	for _, d := range selected {
		fmt.Fprintf(w, "%s [%d,%d)\n", d.ID, d.Start, d.End)
	}
	return nil
}
