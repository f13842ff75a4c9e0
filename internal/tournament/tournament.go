// Package tournament drives the outer loop: per round an optional edit
// phase, a competition (in-process or containerized), artifact persistence,
// and log injection back into the agent workspaces.
package tournament

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"solclash/internal/arena"
	"solclash/internal/artifacts"
	"solclash/internal/compete"
	"solclash/internal/config"
	"solclash/internal/edit"
	"solclash/internal/harness"
	"solclash/internal/metrics"
	"solclash/internal/persistence"
	"solclash/internal/policy"
	"solclash/internal/progress"
	"solclash/internal/round"
	"solclash/internal/runtime"
	"solclash/internal/tape"
)

// One container creation per second keeps a burst of concurrent edit
// sessions from hammering the docker daemon.
const editLaunchInterval = time.Second

const shutdownGrace = 5 * time.Second

// RoundEntry pairs a round number with its meta for tournament.json.
type RoundEntry struct {
	RoundNum int        `json:"round_num"`
	Meta     round.Meta `json:"meta"`
}

// Record is the tournament.json document: the resolved config, the agents
// in configuration order, and every completed round.
type Record struct {
	TournamentID string         `json:"tournament_id"`
	Config       *config.Config `json:"config"`
	AgentIDs     []string       `json:"agent_ids"`
	Rounds       []RoundEntry   `json:"rounds"`
}

// PolicyRunner serves native policy programs for one round and is shut down
// when the round ends. harness.Client satisfies it.
type PolicyRunner interface {
	round.PolicyProvider
	Shutdown(ctx context.Context) error
}

// Runner executes a tournament. Cfg, Arena, Weights, and Tape are required;
// a nil Store discards, nil Metrics and Bus are no-ops. Runtime is needed
// only when the edit phase or the container runtime is configured.
type Runner struct {
	Cfg     *config.Config
	Arena   *arena.Config
	Weights arena.ScoringWeights
	Tape    *tape.Tape

	Store   persistence.Store
	Runtime runtime.Runtime
	Metrics *metrics.Registry
	Bus     *progress.Bus
	Clock   round.Clock

	// NewPolicyRunner overrides how native policies are served in
	// in-process rounds; nil starts the configured harness binary on
	// demand.
	NewPolicyRunner func() (PolicyRunner, error)
}

// Run plays every round in order and writes tournament.json last. Round
// n+1 never starts before round n's artifacts and injected logs are on
// disk.
func (r *Runner) Run(ctx context.Context) (*Record, error) {
	if err := os.MkdirAll(filepath.Join(r.Cfg.OutputDir, "rounds"), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	rec := &Record{
		TournamentID: r.Cfg.TournamentID,
		Config:       r.Cfg,
		AgentIDs:     agentIDs(r.Cfg),
	}
	log.Info().
		Str("tournament", r.Cfg.TournamentID).
		Int("rounds", r.Cfg.Rounds).
		Str("runtime", r.Cfg.Runtime).
		Int("agents", len(r.Cfg.Agents)).
		Msg("tournament starting")

	for n := 1; n <= r.Cfg.Rounds; n++ {
		meta, err := r.runRound(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", n, err)
		}
		rec.Rounds = append(rec.Rounds, RoundEntry{RoundNum: n, Meta: meta})
	}

	if err := artifacts.WriteJSON(filepath.Join(r.Cfg.OutputDir, "tournament.json"), rec); err != nil {
		return nil, err
	}
	// The file tree is the source of truth; a mirror failure must not
	// void a finished tournament.
	if err := r.store().SaveTournament(ctx, rec.TournamentID, rec.AgentIDs, rec); err != nil {
		log.Error().Err(err).Msg("persist tournament record")
	}
	log.Info().Str("tournament", r.Cfg.TournamentID).Int("rounds", len(rec.Rounds)).Msg("tournament finished")
	return rec, nil
}

func (r *Runner) runRound(ctx context.Context, n int) (round.Meta, error) {
	roundDir := filepath.Join(r.Cfg.OutputDir, "rounds", strconv.Itoa(n))
	if err := os.MkdirAll(roundDir, 0o755); err != nil {
		return round.Meta{}, fmt.Errorf("create round dir: %w", err)
	}

	timer := r.Metrics.StartRound(n)
	defer timer.Stop()
	r.Bus.Publish(progress.Event{Type: progress.TypeRoundStarted, Round: n})

	if r.editEnabled(n) {
		phase := &edit.Phase{
			Runtime:  r.Runtime,
			Cfg:      r.Cfg.Edit,
			LogsRoot: filepath.Join(r.Cfg.OutputDir, "edit"),
			Limiter:  rate.NewLimiter(rate.Every(editLaunchInterval), 1),
			Metrics:  r.Metrics,
			Bus:      r.Bus,
		}
		results := phase.Run(ctx, n, r.Cfg.Agents)
		for id, res := range results {
			if res.Status != edit.StatusSuccess {
				log.Warn().Str("agent", id).Str("status", res.Status).Str("error", res.Error).
					Msg("edit session did not land, competing with previous code")
			}
		}
	}

	var meta round.Meta
	var results map[string]*round.Metrics
	var err error
	if r.Cfg.Runtime == config.RuntimeContainer {
		meta, err = r.competeRound(ctx, n, roundDir)
	} else {
		meta, results, err = r.inProcRound(ctx, n, roundDir)
	}
	if err != nil {
		return round.Meta{}, err
	}

	if err := r.injectLogs(n, roundDir); err != nil {
		return round.Meta{}, err
	}
	if err := r.store().SaveRound(ctx, r.Cfg.TournamentID, n, meta, results); err != nil {
		log.Error().Err(err).Int("round", n).Msg("persist round results")
	}

	winner := ""
	if meta.Winner != nil {
		winner = *meta.Winner
	}
	r.Bus.Publish(progress.Event{Type: progress.TypeRoundFinished, Round: n, Winner: winner})
	log.Info().Int("round", n).Str("winner", winner).Msg("round finished")
	return meta, nil
}

// editEnabled applies the first-round gate: editing before any results
// exist is configurable because a first prompt has nothing to react to.
func (r *Runner) editEnabled(n int) bool {
	if !r.Cfg.Edit.Enabled {
		return false
	}
	return n > 1 || r.Cfg.Edit.FirstRound
}

func (r *Runner) inProcRound(ctx context.Context, n int, roundDir string) (round.Meta, map[string]*round.Metrics, error) {
	provider, shutdown, err := r.policyRunner()
	if err != nil {
		return round.Meta{}, nil, err
	}
	defer shutdown()

	roster, err := round.BuildRoster(ctx, r.Arena, r.manifests(), provider, r.Cfg.Harness.ComputeUnitLimit)
	if err != nil {
		return round.Meta{}, nil, err
	}

	exec := &round.Executor{Metrics: r.Metrics, Bus: r.Bus, Clock: r.Clock}
	res, err := exec.Run(ctx, round.Input{
		Arena:         r.Arena,
		Weights:       r.Weights,
		Bars:          r.Tape.Bars,
		Agents:        roster.Agents,
		InvalidAgents: roster.Invalid,
		OutDir:        roundDir,
		Round:         n,
	})
	if err != nil {
		return round.Meta{}, nil, err
	}
	return res.Meta, res.Results, nil
}

func (r *Runner) competeRound(ctx context.Context, n int, roundDir string) (round.Meta, error) {
	phase := &compete.Phase{
		Runtime:          r.Runtime,
		Image:            r.Cfg.Compete.Image,
		Runner:           r.Cfg.Compete.Runner,
		Arena:            r.Arena,
		Tape:             r.Tape,
		Agents:           r.Cfg.Agents,
		HarnessBin:       r.Cfg.Harness.Bin,
		ComputeUnitLimit: r.Cfg.Harness.ComputeUnitLimit,
	}
	return phase.Run(ctx, n, roundDir)
}

// injectLogs mirrors the round directory into every agent workspace so the
// next edit session can read it.
func (r *Runner) injectLogs(n int, roundDir string) error {
	for _, ws := range r.Cfg.InjectTargets() {
		target := filepath.Join(ws, "logs", "rounds", strconv.Itoa(n))
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("inject logs into %s: %w", ws, err)
		}
		if err := runtime.CopyPath(roundDir+string(filepath.Separator)+".", target); err != nil {
			return fmt.Errorf("inject logs into %s: %w", ws, err)
		}
	}
	return nil
}

// policyRunner picks the native policy source for one in-process round.
// The harness subprocess restarts every round so freshly built artifacts
// are re-loaded.
func (r *Runner) policyRunner() (round.PolicyProvider, func(), error) {
	var runner PolicyRunner
	switch {
	case r.NewPolicyRunner != nil:
		var err error
		runner, err = r.NewPolicyRunner()
		if err != nil {
			return nil, nil, err
		}
	case r.Cfg.Harness.Bin != "":
		runner = &lazyHarness{bin: r.Cfg.Harness.Bin}
	default:
		return nil, func() {}, nil
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := runner.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("harness shutdown")
		}
	}
	return runner, shutdown, nil
}

func (r *Runner) store() persistence.Store {
	if r.Store == nil {
		return persistence.Discard{}
	}
	return r.Store
}

// manifests derives the round manifests from the configured agents.
func (r *Runner) manifests() []round.AgentManifest {
	out := make([]round.AgentManifest, 0, len(r.Cfg.Agents))
	for _, a := range r.Cfg.Agents {
		out = append(out, round.AgentManifest{
			ID:        a.ID,
			ArenaID:   r.Arena.ArenaID,
			Provider:  a.Provider,
			Workspace: a.Workspace,
			Model:     a.Model,
			Artifact:  a.Artifact,
		})
	}
	return out
}

func agentIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// lazyHarness starts the subprocess on first Init so baseline-only rounds
// never spawn it.
type lazyHarness struct {
	bin    string
	client *harness.Client
}

func (l *lazyHarness) Init(ctx context.Context, programs []harness.Program, computeUnitLimit *uint64) error {
	c, err := harness.Start(l.bin)
	if err != nil {
		return err
	}
	l.client = c
	return c.Init(ctx, programs, computeUnitLimit)
}

func (l *lazyHarness) PolicyFor(agentID string) policy.Policy {
	return l.client.PolicyFor(agentID)
}

func (l *lazyHarness) Shutdown(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Shutdown(ctx)
}
