package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"solclash/internal/arena"
	"solclash/internal/config"
	"solclash/internal/metrics"
	"solclash/internal/monitor"
	"solclash/internal/persistence"
	"solclash/internal/persistence/postgres"
	"solclash/internal/progress"
	"solclash/internal/runtime"
	"solclash/internal/tape"
	"solclash/internal/tournament"
)

const tapeCacheTTL = time.Hour

func newTournamentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Run a full tournament from a YAML configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTournament(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "solclash.yaml", "tournament configuration file")
	return cmd
}

func runTournament(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	arenaCfg, err := arena.Load(cfg.ArenaConfig)
	if err != nil {
		return err
	}
	weights, err := arena.ResolveScoringWeights(arenaCfg, filepath.Dir(cfg.ArenaConfig))
	if err != nil {
		return err
	}

	var cache *tape.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = tape.NewCache(rdb, tapeCacheTTL)
	}
	tp, err := arena.LoadTape(ctx, arenaCfg, cfg.Bars, cache)
	if err != nil {
		return err
	}

	var store persistence.Store = persistence.Discard{}
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN, 0)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	}

	preg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(preg)
	bus := progress.NewBus()

	if cfg.MonitorListen != "" {
		mon := monitor.New(cfg.MonitorListen, cfg.TournamentID, bus, preg)
		if err := mon.Start(); err != nil {
			return err
		}
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = mon.Shutdown(shCtx)
		}()
	}

	runner := &tournament.Runner{
		Cfg:     cfg,
		Arena:   arenaCfg,
		Weights: weights,
		Tape:    tp,
		Store:   store,
		Runtime: pickRuntime(cfg),
		Metrics: reg,
		Bus:     bus,
	}
	rec, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	ev := log.Info().Str("tournament", rec.TournamentID).Int("rounds", len(rec.Rounds))
	if n := len(rec.Rounds); n > 0 && rec.Rounds[n-1].Meta.Winner != nil {
		ev = ev.Str("final_winner", *rec.Rounds[n-1].Meta.Winner)
	}
	ev.Msg("tournament complete")
	return nil
}

// pickRuntime builds a container backend only when a phase needs one.
func pickRuntime(cfg *config.Config) runtime.Runtime {
	if !cfg.Edit.Enabled && cfg.Runtime != config.RuntimeContainer {
		return nil
	}
	if cfg.Backend == config.BackendHost {
		return runtime.NewHostRuntime("")
	}
	return runtime.NewDockerRuntime()
}
