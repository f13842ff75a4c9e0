package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"solclash/internal/arena"
	"solclash/internal/harness"
	"solclash/internal/round"
)

func newRoundCmd() *cobra.Command {
	var (
		arenaPath   string
		barsPath    string
		outDir      string
		roundNum    int
		manifestDir string
		harnessBin  string
		cuLimit     optionalUint64
	)

	cmd := &cobra.Command{
		Use:   "round",
		Short: "Execute a single round against an arena config and tape",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRound(cmd.Context(), roundInputs{
				ArenaPath:        arenaPath,
				BarsPath:         barsPath,
				OutDir:           outDir,
				Round:            roundNum,
				ManifestDir:      manifestDir,
				HarnessBin:       harnessBin,
				ComputeUnitLimit: cuLimit.Ptr(),
			})
		},
	}
	cmd.Flags().StringVar(&arenaPath, "arena", "", "arena configuration file")
	cmd.Flags().StringVar(&barsPath, "bars", "", "bar tape file (JSON or JSONL)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for round artifacts")
	cmd.Flags().IntVar(&roundNum, "round", 1, "round number recorded in artifacts")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "directory holding agent-*.json manifests")
	cmd.Flags().StringVar(&harnessBin, "harness", "", "policy harness binary for native agents")
	cmd.Flags().Var(&cuLimit, "compute-unit-limit", "per-decision compute unit budget")
	_ = cmd.MarkFlagRequired("arena")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

type roundInputs struct {
	ArenaPath        string
	BarsPath         string
	OutDir           string
	Round            int
	ManifestDir      string
	HarnessBin       string
	ComputeUnitLimit *uint64
}

func runRound(ctx context.Context, in roundInputs) error {
	cfg, err := arena.Load(in.ArenaPath)
	if err != nil {
		return err
	}
	weights, err := arena.ResolveScoringWeights(cfg, filepath.Dir(in.ArenaPath))
	if err != nil {
		return err
	}
	tp, err := arena.LoadTape(ctx, cfg, in.BarsPath, nil)
	if err != nil {
		return err
	}

	var manifests []round.AgentManifest
	if in.ManifestDir != "" {
		manifests, err = round.LoadManifests(in.ManifestDir)
		if err != nil {
			return err
		}
	}

	var provider round.PolicyProvider
	if in.HarnessBin != "" {
		client, err := harness.Start(in.HarnessBin)
		if err != nil {
			return err
		}
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Shutdown(shCtx)
		}()
		provider = client
	}

	roster, err := round.BuildRoster(ctx, cfg, manifests, provider, in.ComputeUnitLimit)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
		return err
	}

	exec := &round.Executor{}
	res, err := exec.Run(ctx, round.Input{
		Arena:         cfg,
		Weights:       weights,
		Bars:          tp.Bars,
		Agents:        roster.Agents,
		InvalidAgents: roster.Invalid,
		OutDir:        in.OutDir,
		Round:         in.Round,
	})
	if err != nil {
		return err
	}

	ev := log.Info().Int("round", in.Round).Int("agents", len(roster.Agents))
	if res.Meta.Winner != nil {
		ev = ev.Str("winner", *res.Meta.Winner)
	}
	ev.Msg("round complete")
	return nil
}
