package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/arena"
	"solclash/internal/config"
	"solclash/internal/harness"
	"solclash/internal/policy"
	"solclash/internal/round"
	"solclash/internal/runtime"
	"solclash/internal/tape"
	"solclash/internal/window"
)

type fakeStore struct {
	roundSaves      []int
	tournamentSaves []string
	agentIDs        []string
	fail            bool
}

func (s *fakeStore) SaveRound(_ context.Context, _ string, n int, _ round.Meta, _ map[string]*round.Metrics) error {
	if s.fail {
		return errors.New("database unreachable")
	}
	s.roundSaves = append(s.roundSaves, n)
	return nil
}

func (s *fakeStore) SaveTournament(_ context.Context, id string, agentIDs []string, _ any) error {
	if s.fail {
		return errors.New("database unreachable")
	}
	s.tournamentSaves = append(s.tournamentSaves, id)
	s.agentIDs = agentIDs
	return nil
}

func (s *fakeStore) Close() error { return nil }

func risingTape(n int) *tape.Tape {
	bars := make([]tape.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		start := int64(i) * 60_000
		bars[i] = tape.Bar{
			Symbol: "SOL-PERP", StartTSMS: start, EndTSMS: start + 60_000,
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 100,
		}
	}
	return &tape.Tape{
		Instrument: &tape.Instrument{Symbol: "SOL-PERP", BaseAsset: "SOL", QuoteAsset: "USDC", PriceScale: 6, VolumeScale: 9},
		Bars:       bars,
	}
}

func testArena() *arena.Config {
	return &arena.Config{
		ArenaID:             "T1",
		BarIntervalSeconds:  60,
		WindowDurationBars:  10,
		MaxWindowOverlapPct: 0,
		WindowsPerRound:     2,
		WindowSampling:      window.SamplingConfig{Mode: window.ModeSequential},
		LookbackLen:         4,
		LiquidityMult:       1,
		MinLiquidity:        1,
		InitialMarginBps:    1000,
		MaxLeverageBps:      100_000,
		InitialBalances:     map[string]float64{"USDC": 10_000},
		Baselines:           []string{policy.BaselineFlat, policy.BaselineBuyAndHold},
		Instrument: tape.Instrument{
			Symbol: "SOL-PERP", BaseAsset: "SOL", QuoteAsset: "USDC",
			PriceScale: 6, VolumeScale: 9,
		},
	}
}

func testRunner(t *testing.T, rounds int) (*Runner, *fakeStore, string) {
	t.Helper()
	out := t.TempDir()
	ws := t.TempDir()
	store := &fakeStore{}
	r := &Runner{
		Cfg: &config.Config{
			TournamentID: "demo",
			Rounds:       rounds,
			Runtime:      config.RuntimeInProc,
			OutputDir:    out,
			Agents: []config.Agent{
				{ID: "alpha", Provider: "anthropic", Workspace: ws},
			},
		},
		Arena:   testArena(),
		Weights: arena.ScoringWeights{PnL: 1, Drawdown: -0.5},
		Tape:    risingTape(20),
		Store:   store,
	}
	return r, store, ws
}

func TestRunPlaysRoundsAndWritesRecord(t *testing.T) {
	r, store, ws := testRunner(t, 2)

	rec, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.Rounds, 2)
	assert.Equal(t, 1, rec.Rounds[0].RoundNum)
	assert.Equal(t, 2, rec.Rounds[1].RoundNum)
	assert.Equal(t, []string{"alpha"}, rec.AgentIDs)

	// buy-and-hold beats flat on a rising tape; alpha has no artifact and
	// scores zero without stopping the round
	require.NotNil(t, rec.Rounds[0].Meta.Winner)
	assert.Equal(t, policy.BaselineBuyAndHold, *rec.Rounds[0].Meta.Winner)
	assert.Contains(t, rec.Rounds[0].Meta.InvalidAgents["alpha"], "agent_artifact_missing")
	assert.Zero(t, rec.Rounds[0].Meta.Scores["alpha"])

	for n := 1; n <= 2; n++ {
		dir := filepath.Join(r.Cfg.OutputDir, "rounds", strconv.Itoa(n))
		for _, name := range []string{"summary.json", "round_results.json", "round_meta.json"} {
			_, err := os.Stat(filepath.Join(dir, name))
			assert.NoError(t, err, "rounds/%d/%s", n, name)
		}
		// injection mirrors the round directory into the workspace
		_, err := os.Stat(filepath.Join(ws, "logs", "rounds", strconv.Itoa(n), "round_meta.json"))
		assert.NoError(t, err, "injected logs for round %d", n)
	}

	raw, err := os.ReadFile(filepath.Join(r.Cfg.OutputDir, "tournament.json"))
	require.NoError(t, err)
	var onDisk Record
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "demo", onDisk.TournamentID)
	assert.Len(t, onDisk.Rounds, 2)

	assert.Equal(t, []int{1, 2}, store.roundSaves)
	assert.Equal(t, []string{"demo"}, store.tournamentSaves)
	assert.Equal(t, []string{"alpha"}, store.agentIDs)
}

func TestRunStoreFailureDoesNotAbort(t *testing.T) {
	r, store, _ := testRunner(t, 1)
	store.fail = true

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.Rounds, 1)

	_, err = os.Stat(filepath.Join(r.Cfg.OutputDir, "tournament.json"))
	assert.NoError(t, err)
}

func TestRunNilStoreDiscards(t *testing.T) {
	r, _, _ := testRunner(t, 1)
	r.Store = nil

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.Rounds, 1)
}

func TestEditGating(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		firstRound bool
		round      int
		want       bool
	}{
		{"disabled", false, true, 2, false},
		{"round one gated by default", true, false, 1, false},
		{"round one allowed when configured", true, true, 1, true},
		{"later rounds always edit", true, false, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Runner{Cfg: &config.Config{Edit: config.Edit{Enabled: tt.enabled, FirstRound: tt.firstRound}}}
			assert.Equal(t, tt.want, r.editEnabled(tt.round))
		})
	}
}

func TestRunEditPhaseLandsBetweenRounds(t *testing.T) {
	r, _, ws := testRunner(t, 2)

	runner := filepath.Join(t.TempDir(), "editor.sh")
	script := `#!/bin/sh
set -e
echo "refactor the momentum filter" > "${CONTAINER_ROOT}/workspace/NOTES.md"
cat > "${CONTAINER_ROOT}/logs/edit_meta.json" <<EOF
{"agent_id":"alpha","status":"success","session_id":"s-1"}
EOF
`
	require.NoError(t, os.WriteFile(runner, []byte(script), 0o755))

	r.Runtime = runtime.NewHostRuntime(t.TempDir())
	r.Cfg.Edit = config.Edit{
		Enabled:     true,
		FirstRound:  false,
		Prompt:      "default",
		Concurrency: 1,
		Image:       "solclash-edit:test",
		Runner:      runner,
	}

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.Rounds, 2)

	// the editor ran before round 2 and its write survived the workspace swap
	note, err := os.ReadFile(filepath.Join(ws, "NOTES.md"))
	require.NoError(t, err)
	assert.Contains(t, string(note), "momentum filter")

	// round 1 logs were injected before the edit and carried through it
	_, err = os.Stat(filepath.Join(ws, "logs", "rounds", "1", "round_meta.json"))
	assert.NoError(t, err)

	// session logs land under the output tree
	_, err = os.Stat(filepath.Join(r.Cfg.OutputDir, "edit", "2", "alpha", "edit_meta.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(r.Cfg.OutputDir, "edit", "2", "alpha", "brief.json"))
	assert.NoError(t, err)
}

type fakeRunner struct {
	programs  []harness.Program
	shutdowns int
}

func (f *fakeRunner) Init(_ context.Context, programs []harness.Program, _ *uint64) error {
	f.programs = append(f.programs, programs...)
	return nil
}

func (f *fakeRunner) PolicyFor(string) policy.Policy {
	return policy.Func(func(context.Context, *policy.EvalInput) (*policy.StepOutput, error) {
		return &policy.StepOutput{Version: 1, Action: policy.Hold}, nil
	})
}

func (f *fakeRunner) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

func TestRunNativeAgentsThroughPolicyRunner(t *testing.T) {
	r, _, ws := testRunner(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "policy.so"), []byte("elf"), 0o644))

	fake := &fakeRunner{}
	r.NewPolicyRunner = func() (PolicyRunner, error) { return fake, nil }

	rec, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.Rounds, 2)

	// the artifact is re-loaded every round and the runner torn down after
	require.Len(t, fake.programs, 2)
	assert.Equal(t, "alpha", fake.programs[0].ID)
	assert.Equal(t, filepath.Join(ws, "policy.so"), fake.programs[0].SOPath)
	assert.Equal(t, 2, fake.shutdowns)

	assert.Empty(t, rec.Rounds[0].Meta.InvalidAgents)
	assert.Contains(t, rec.Rounds[0].Meta.Scores, "alpha")
}
