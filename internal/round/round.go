// Package round executes one competition round: validate the tape, pick the
// round's windows, replay every agent over them, aggregate and score, and
// persist the round's artifacts.
package round

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"solclash/internal/arena"
	"solclash/internal/artifacts"
	"solclash/internal/fault"
	"solclash/internal/metrics"
	"solclash/internal/progress"
	"solclash/internal/sim"
	"solclash/internal/tape"
	"solclash/internal/window"
)

// Metrics aggregates one agent's results across a round.
type Metrics struct {
	AgentID     string               `json:"agent_id"`
	PnLTotal    float64              `json:"pnl_total"`
	DrawdownMax float64              `json:"drawdown_max"`
	ExposureAvg float64              `json:"exposure_avg"`
	Score       float64              `json:"score"`
	Weights     arena.ScoringWeights `json:"weights"`
	Windows     []sim.WindowMetrics  `json:"windows"`
}

// Meta is the round's outcome header. Timestamps are unix milliseconds and
// are the only wall-clock values in the round's outputs.
type Meta struct {
	RoundStartTS  int64              `json:"round_start_ts"`
	RoundEndTS    int64              `json:"round_end_ts"`
	Winner        *string            `json:"winner"`
	Scores        map[string]float64 `json:"scores"`
	InvalidAgents map[string]string  `json:"invalid_agents,omitempty"`
}

// WindowSummary describes one selected window in summary.json. An invalid
// window carries the first validation error found inside its range.
type WindowSummary struct {
	WindowID            string `json:"window_id"`
	Start               int    `json:"start"`
	End                 int    `json:"end"`
	InvalidWindowReason string `json:"invalid_window_reason,omitempty"`
}

// Summary is the round's summary.json document.
type Summary struct {
	ArenaID         string          `json:"arena_id"`
	Round           int             `json:"round"`
	AgentIDs        []string        `json:"agent_ids"`
	TotalWindows    int             `json:"total_windows"`
	ValidWindows    int             `json:"valid_windows"`
	SelectedWindows []WindowSummary `json:"selected_windows"`
}

// Input carries everything one round needs. InvalidAgents lists agents that
// never reached the simulator (build or artifact failures); they score zero
// and the round continues.
type Input struct {
	Arena         *arena.Config
	Weights       arena.ScoringWeights
	Bars          []tape.Bar
	Agents        []sim.Agent
	InvalidAgents map[string]string
	OutDir        string
	Round         int
}

// Result is one completed round.
type Result struct {
	Meta    Meta
	Results map[string]*Metrics
	Summary Summary
}

// Clock is injectable so round timestamps are testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Executor runs rounds. Metrics and Bus may be nil.
type Executor struct {
	Metrics *metrics.Registry
	Bus     *progress.Bus
	Clock   Clock
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now()
}

// Run executes one round and writes summary.json, round_results.json, and
// round_meta.json plus the per-agent JSONL logs under in.OutDir.
func (e *Executor) Run(ctx context.Context, in Input) (*Result, error) {
	start := e.now()

	verrs := tape.Validate(in.Bars, in.Arena.IntervalMS())
	errsByIdx := tape.ErrorsByIndex(verrs)

	all := window.Enumerate(len(in.Bars), in.Arena.WindowDurationBars, in.Arena.MaxWindowOverlapPct)
	if len(all) == 0 {
		return nil, fault.New(fault.NoWindows, "no window of %d bars fits on a %d-bar tape",
			in.Arena.WindowDurationBars, len(in.Bars))
	}

	invalidReason := make(map[string]string)
	valid := 0
	for _, w := range all {
		if first, bad := window.FirstError(w, errsByIdx); bad {
			invalidReason[w.ID] = first.Error()
		} else {
			valid++
		}
	}
	if valid < in.Arena.WindowsPerRound {
		return nil, fault.New(fault.InsufficientValidWindows, "need %d valid windows, have %d of %d",
			in.Arena.WindowsPerRound, valid, len(all))
	}

	scfg := in.Arena.WindowSampling
	if scfg.Seed == "" {
		scfg.Seed = in.Arena.ArenaID
	}
	selected := window.Sample(all, in.Bars, scfg, in.Arena.WindowsPerRound)

	log.Info().
		Str("arena", in.Arena.ArenaID).
		Int("round", in.Round).
		Int("windows", len(selected)).
		Int("agents", len(in.Agents)).
		Msg("round starting")

	sinks := artifacts.NewSinks(in.OutDir)
	defer sinks.Close()

	engineCfg := in.Arena.Engine()
	agg := make(map[string]*Metrics, len(in.Agents))
	order := make([]string, 0, len(in.Agents))
	for _, ag := range in.Agents {
		agg[ag.ID] = &Metrics{AgentID: ag.ID, Weights: in.Weights}
		order = append(order, ag.ID)
	}

	summaries := make([]WindowSummary, 0, len(selected))
	for _, w := range selected {
		ws := WindowSummary{WindowID: w.ID, Start: w.Start, End: w.End}
		if reason, bad := invalidReason[w.ID]; bad {
			ws.InvalidWindowReason = reason
			for _, ag := range in.Agents {
				agg[ag.ID].Windows = append(agg[ag.ID].Windows, sim.WindowMetrics{WindowID: w.ID})
			}
			summaries = append(summaries, ws)
			log.Warn().Str("window", w.ID).Str("reason", reason).Msg("window invalid, zero metrics synthesized")
			continue
		}

		outcomes, err := sim.RunWindow(ctx, engineCfg, in.Bars[w.Start:w.End], w.ID, in.Agents)
		if err != nil {
			return nil, err
		}
		for _, ag := range in.Agents {
			oc := outcomes[ag.ID]
			if err := appendLogs(sinks, ag.ID, oc); err != nil {
				return nil, err
			}
			agg[ag.ID].Windows = append(agg[ag.ID].Windows, oc.Metrics)
			e.Metrics.RecordAgentWindow(ag.ID, len(oc.Trades), oc.Metrics.Liquidations, errCodeCounts(oc.Policy))
		}
		if err := sinks.Flush(); err != nil {
			return nil, err
		}
		e.Metrics.WindowDone()
		e.Bus.Publish(progress.Event{Type: progress.TypeWindowDone, Round: in.Round, WindowID: w.ID})
		summaries = append(summaries, ws)
	}

	scores := make(map[string]float64, len(order)+len(in.InvalidAgents))
	scoreOrder := make([]string, 0, len(order)+len(in.InvalidAgents))
	for _, id := range order {
		m := agg[id]
		var exposureSum float64
		for _, wm := range m.Windows {
			m.PnLTotal += wm.PnL
			if wm.MaxDrawdown > m.DrawdownMax {
				m.DrawdownMax = wm.MaxDrawdown
			}
			exposureSum += wm.MeanExposure
		}
		if len(m.Windows) > 0 {
			m.ExposureAvg = exposureSum / float64(len(m.Windows))
		}
		m.Score = in.Weights.Score(m.PnLTotal, m.DrawdownMax, m.ExposureAvg)
		scores[id] = m.Score
		scoreOrder = append(scoreOrder, id)
	}
	// invalid agents extend the score map at zero, in sorted id order so the
	// extension is deterministic
	for _, id := range sortedKeys(in.InvalidAgents) {
		if _, ok := scores[id]; !ok {
			scores[id] = 0
			scoreOrder = append(scoreOrder, id)
		}
	}

	meta := Meta{
		RoundStartTS:  start.UnixMilli(),
		RoundEndTS:    e.now().UnixMilli(),
		Winner:        pickWinner(scores, scoreOrder),
		Scores:        scores,
		InvalidAgents: in.InvalidAgents,
	}
	summary := Summary{
		ArenaID:         in.Arena.ArenaID,
		Round:           in.Round,
		AgentIDs:        order,
		TotalWindows:    len(all),
		ValidWindows:    valid,
		SelectedWindows: summaries,
	}

	if err := sinks.Close(); err != nil {
		return nil, err
	}
	if err := artifacts.WriteJSON(filepath.Join(in.OutDir, "summary.json"), summary); err != nil {
		return nil, err
	}
	if err := artifacts.WriteJSON(filepath.Join(in.OutDir, "round_results.json"), agg); err != nil {
		return nil, err
	}
	if err := artifacts.WriteJSON(filepath.Join(in.OutDir, "round_meta.json"), meta); err != nil {
		return nil, err
	}

	winner := "none"
	if meta.Winner != nil {
		winner = *meta.Winner
	}
	log.Info().Str("arena", in.Arena.ArenaID).Int("round", in.Round).Str("winner", winner).Msg("round finished")

	return &Result{Meta: meta, Results: agg, Summary: summary}, nil
}

func appendLogs(sinks *artifacts.Sinks, agentID string, oc *sim.WindowOutcome) error {
	for _, rec := range oc.Policy {
		if err := sinks.Append(agentID, artifacts.KindPolicy, rec); err != nil {
			return err
		}
	}
	for _, rec := range oc.Trades {
		if err := sinks.Append(agentID, artifacts.KindTrade, rec); err != nil {
			return err
		}
	}
	for _, rec := range oc.Equity {
		if err := sinks.Append(agentID, artifacts.KindEquity, rec); err != nil {
			return err
		}
	}
	for _, rec := range oc.Liquidations {
		if err := sinks.Append(agentID, artifacts.KindLiquidation, rec); err != nil {
			return err
		}
	}
	return nil
}

func errCodeCounts(records []sim.PolicyRecord) map[int]int {
	var counts map[int]int
	for _, rec := range records {
		if rec.Status != sim.StatusErr {
			continue
		}
		if counts == nil {
			counts = make(map[int]int)
		}
		counts[rec.ErrCode]++
	}
	return counts
}

// pickWinner returns the first-inserted agent holding the greatest score, or
// nil when the score map is empty.
func pickWinner(scores map[string]float64, order []string) *string {
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, id := range order[1:] {
		if scores[id] > scores[best] {
			best = id
		}
	}
	return &best
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
