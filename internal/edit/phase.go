package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"solclash/internal/config"
	"solclash/internal/metrics"
	"solclash/internal/progress"
	"solclash/internal/runtime"
)

// Phase runs one round's edit sessions. Sessions for distinct agents run
// concurrently up to the configured limit, each in its own container; one
// session's timeout or failure never disturbs the others.
type Phase struct {
	Runtime  runtime.Runtime
	Cfg      config.Edit
	LogsRoot string // host directory receiving edits/<round>/<agent>/
	Limiter  *rate.Limiter
	Metrics  *metrics.Registry
	Bus      *progress.Bus
}

// Run edits every non-builtin agent's workspace and returns the per-agent
// outcomes. Builtin agents are skipped silently.
func (p *Phase) Run(ctx context.Context, roundNum int, agents []config.Agent) map[string]Result {
	editable := make([]config.Agent, 0, len(agents))
	for _, a := range agents {
		if !a.Builtin() {
			editable = append(editable, a)
		}
	}

	results := make([]Result, len(editable))
	g := &errgroup.Group{}
	limit := p.Cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, agent := range editable {
		i, agent := i, agent
		g.Go(func() error {
			p.Bus.Publish(progress.Event{Type: progress.TypeEditStarted, Round: roundNum, AgentID: agent.ID})
			results[i] = p.runSession(ctx, roundNum, agent)
			p.Metrics.RecordEditSession(results[i].Status)
			p.Bus.Publish(progress.Event{
				Type:    progress.TypeEditFinished,
				Round:   roundNum,
				AgentID: agent.ID,
				Status:  results[i].Status,
			})
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.AgentID] = r
	}
	return out
}

// runSession executes one agent's edit session end to end. All outcomes are
// expressed in the returned Result; nothing aborts the phase.
func (p *Phase) runSession(ctx context.Context, roundNum int, agent config.Agent) Result {
	logDir := filepath.Join(p.LogsRoot, strconv.Itoa(roundNum), agent.ID)
	res := Result{AgentID: agent.ID, Status: StatusFailure, LogDir: logDir}
	fail := func(err error) Result {
		res.Status = StatusFailure
		res.Error = err.Error()
		log.Warn().Str("agent", agent.ID).Int("round", roundNum).Err(err).Msg("edit session failed")
		return res
	}

	prompt, err := ResolvePrompt(p.Cfg.Prompt, roundNum, agent.ID)
	if err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fail(fmt.Errorf("create edit log dir: %w", err))
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	sessionID := uuid.NewString()
	id, err := p.Runtime.Create(ctx, runtime.Spec{
		Image:   p.Cfg.Image,
		Workdir: containerWorkspace,
		Env: map[string]string{
			"SOLCLASH_AGENT_ID": agent.ID,
			"SOLCLASH_ROUND":    strconv.Itoa(roundNum),
		},
	})
	if err != nil {
		return fail(fmt.Errorf("create edit container: %w", err))
	}
	defer func() {
		if rmErr := p.Runtime.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
			log.Warn().Str("agent", agent.ID).Err(rmErr).Msg("failed to remove edit container")
		}
	}()

	if err := p.Runtime.CopyTo(ctx, id, agent.Workspace+"/.", containerWorkspace); err != nil {
		return fail(fmt.Errorf("ship workspace in: %w", err))
	}

	briefPath := filepath.Join(logDir, "brief.json")
	containerBrief := "/tmp/edit-input-" + sessionID + ".json"
	if err := p.writeBrief(briefPath, roundNum, agent, prompt); err != nil {
		return fail(err)
	}
	if err := p.Runtime.CopyTo(ctx, id, briefPath, containerBrief); err != nil {
		return fail(fmt.Errorf("ship brief in: %w", err))
	}

	execCtx := ctx
	cancel := func() {}
	if p.Cfg.TimeoutMS > 0 {
		execCtx, cancel = context.WithTimeout(ctx, msToDuration(p.Cfg.TimeoutMS))
	}
	exec, execErr := p.Runtime.Exec(execCtx, id, []string{p.Cfg.Runner, "--input", containerBrief, "--log-dir", containerLogs}, runtime.ExecOpts{})
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()

	// logs are salvaged regardless of how the runner ended
	if err := p.Runtime.CopyFrom(ctx, id, containerLogs+"/.", logDir); err != nil {
		log.Warn().Str("agent", agent.ID).Err(err).Msg("edit logs not copied back")
	}

	if execErr != nil && !timedOut {
		return fail(fmt.Errorf("exec edit runner: %w", execErr))
	}

	p.settleStatus(&res, exec, timedOut)
	if res.Status != StatusSuccess {
		log.Info().Str("agent", agent.ID).Int("round", roundNum).Str("status", res.Status).Msg("edit session ended without sync")
		return res
	}

	// The only path that persists edits: stage the container workspace on the
	// host, then atomically replace the agent's workspace with it.
	staged, err := os.MkdirTemp("", "solclash-edit-*")
	if err != nil {
		return fail(fmt.Errorf("stage edited workspace: %w", err))
	}
	defer os.RemoveAll(staged)
	if err := p.Runtime.CopyFrom(ctx, id, containerWorkspace+"/.", staged); err != nil {
		return fail(fmt.Errorf("ship workspace out: %w", err))
	}
	if err := runtime.ReplaceDirWithContents(staged, agent.Workspace); err != nil {
		return fail(err)
	}

	log.Info().Str("agent", agent.ID).Int("round", roundNum).Str("session", res.SessionID).Msg("edit session succeeded, workspace synced")
	return res
}

// settleStatus decides the session outcome: edit_meta.json wins when the
// runner wrote one; otherwise the exit code is interpreted, with a tripped
// deadline forcing timeout.
func (p *Phase) settleStatus(res *Result, exec runtime.ExecResult, timedOut bool) {
	if meta, ok := p.readMeta(res.LogDir); ok {
		res.Status = meta.Status
		res.SessionID = meta.SessionID
		res.CheckpointID = meta.CheckpointID
		res.Error = meta.Error
		return
	}
	switch {
	case timedOut:
		res.Status = StatusTimeout
		res.Error = "edit session deadline exceeded"
	case exec.ExitCode == exitSuccess:
		res.Status = StatusSuccess
	case exec.ExitCode == exitTimeout:
		res.Status = StatusTimeout
	default:
		res.Status = StatusFailure
		res.Error = fmt.Sprintf("edit runner exited %d: %s", exec.ExitCode, strings.TrimSpace(exec.Stderr))
	}
}

func (p *Phase) readMeta(logDir string) (Meta, bool) {
	raw, err := os.ReadFile(filepath.Join(logDir, "edit_meta.json"))
	if err != nil {
		return Meta{}, false
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil || !knownStatus(meta.Status) {
		log.Warn().Str("log_dir", logDir).Msg("edit_meta.json unreadable, falling back to exit code")
		return Meta{}, false
	}
	return meta, true
}

func (p *Phase) writeBrief(path string, roundNum int, agent config.Agent, prompt Prompt) error {
	model := agent.Model
	if model == "" {
		model = p.Cfg.Model
	}
	brief := Brief{
		Round:           roundNum,
		AgentID:         agent.ID,
		WorkspacePath:   containerWorkspace,
		SystemPrompt:    prompt.Content,
		MaxTurns:        p.Cfg.MaxTurns,
		ToolAllowlist:   p.Cfg.Tools,
		SandboxEnabled:  p.Cfg.Sandbox,
		NetworkPolicy:   p.Cfg.Network,
		SettingsSources: p.Cfg.SettingsSources,
		TimeoutMS:       p.Cfg.TimeoutMS,
		Model:           model,
		PromptRef:       prompt.Ref,
		PromptSHA256:    prompt.SHA256,
		PromptPath:      prompt.Path,
	}
	raw, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return fmt.Errorf("encode brief: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write brief: %w", err)
	}
	return nil
}

func msToDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
