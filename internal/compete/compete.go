// Package compete runs one competition round inside a container: the
// arena config, bars, and agent workspaces ship in, the inner round runner
// replays the round, and the log tree plus round meta ship back out.
package compete

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"solclash/internal/arena"
	"solclash/internal/artifacts"
	"solclash/internal/config"
	"solclash/internal/fault"
	"solclash/internal/round"
	"solclash/internal/runtime"
	"solclash/internal/tape"
)

// Container layout the inner runner contract fixes.
const (
	containerInputs = "/inputs"
	containerAgents = "/opt/solclash/agents"
	containerLogs   = "/logs/rounds"
)

// DefaultRunner is the inner runner argv baked into arena images.
var DefaultRunner = []string{"solclash", "round"}

// Phase runs container rounds. One Phase serves a whole tournament; Run is
// called once per round.
type Phase struct {
	Runtime          runtime.Runtime
	Image            string
	Runner           []string
	Arena            *arena.Config
	Tape             *tape.Tape
	Agents           []config.Agent
	HarnessBin       string
	ComputeUnitLimit *uint64
}

// Run executes round roundNum in a fresh container and copies its artifact
// tree back into outDir. The returned meta is read from the copied
// round_meta.json. The container and the staging directory are always
// cleaned up.
func (p *Phase) Run(ctx context.Context, roundNum int, outDir string) (round.Meta, error) {
	staging, err := os.MkdirTemp("", "solclash-round-*")
	if err != nil {
		return round.Meta{}, fmt.Errorf("stage round inputs: %w", err)
	}
	defer os.RemoveAll(staging)

	cfgPath := filepath.Join(staging, "arena-config.json")
	barsPath := filepath.Join(staging, "bars.json")
	if err := artifacts.WriteJSON(cfgPath, p.Arena); err != nil {
		return round.Meta{}, err
	}
	if err := artifacts.WriteJSON(barsPath, p.Tape); err != nil {
		return round.Meta{}, err
	}

	id, err := p.Runtime.Create(ctx, runtime.Spec{Image: p.Image, Workdir: "/"})
	if err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "create arena container")
	}
	defer func() {
		if rmErr := p.Runtime.Remove(context.WithoutCancel(ctx), id); rmErr != nil {
			log.Warn().Err(rmErr).Str("container", id).Msg("failed to remove arena container")
		}
	}()

	roundDir := containerLogs + "/" + strconv.Itoa(roundNum)
	if err := p.mkdirAll(ctx, id, containerInputs, roundDir, containerAgents); err != nil {
		return round.Meta{}, err
	}
	if err := p.Runtime.CopyTo(ctx, id, cfgPath, containerInputs+"/arena-config.json"); err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "ship arena config in")
	}
	if err := p.Runtime.CopyTo(ctx, id, barsPath, containerInputs+"/bars.json"); err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "ship bars in")
	}

	for _, agent := range p.Agents {
		if agent.Builtin() {
			continue
		}
		if err := p.shipAgent(ctx, id, staging, agent); err != nil {
			return round.Meta{}, err
		}
	}

	argv := append([]string{}, p.runner()...)
	argv = append(argv,
		"--arena", containerInputs+"/arena-config.json",
		"--bars", containerInputs+"/bars.json",
		"--out", roundDir,
		"--round", strconv.Itoa(roundNum),
		"--manifest-dir", containerInputs,
	)
	if p.HarnessBin != "" {
		argv = append(argv, "--harness", p.HarnessBin)
	}
	if p.ComputeUnitLimit != nil {
		argv = append(argv, "--compute-unit-limit", strconv.FormatUint(*p.ComputeUnitLimit, 10))
	}

	log.Info().Int("round", roundNum).Str("image", p.Image).Msg("running container round")
	res, err := p.Runtime.Exec(ctx, id, argv, runtime.ExecOpts{})
	if err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "exec arena runner")
	}
	if res.ExitCode != 0 {
		return round.Meta{}, fault.New(fault.ArenaRunFailed, "arena runner exited %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	if err := p.Runtime.CopyFrom(ctx, id, roundDir+"/.", outDir); err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "ship round logs out")
	}
	raw, err := os.ReadFile(filepath.Join(outDir, "round_meta.json"))
	if err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "round produced no round_meta.json")
	}
	var meta round.Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return round.Meta{}, fault.Wrap(fault.ArenaRunFailed, err, "parse round_meta.json")
	}
	return meta, nil
}

func (p *Phase) runner() []string {
	if len(p.Runner) > 0 {
		return p.Runner
	}
	return DefaultRunner
}

// mkdirAll creates container directories through the shell so the host
// backend's CONTAINER_ROOT mapping applies; on a real image the variable is
// empty and the paths stay absolute.
func (p *Phase) mkdirAll(ctx context.Context, id string, dirs ...string) error {
	quoted := make([]string, len(dirs))
	for i, d := range dirs {
		quoted[i] = `"${CONTAINER_ROOT}` + d + `"`
	}
	res, err := p.Runtime.Exec(ctx, id, []string{"sh", "-c", "mkdir -p " + strings.Join(quoted, " ")}, runtime.ExecOpts{})
	if err != nil {
		return fault.Wrap(fault.ArenaRunFailed, err, "prepare container directories")
	}
	if res.ExitCode != 0 {
		return fault.New(fault.ArenaRunFailed, "mkdir exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// shipAgent copies one workspace into the container and drops its manifest
// next to the round inputs.
func (p *Phase) shipAgent(ctx context.Context, id, staging string, agent config.Agent) error {
	dest := containerAgents + "/" + agent.ID
	if err := p.mkdirAll(ctx, id, dest); err != nil {
		return err
	}
	if err := p.Runtime.CopyTo(ctx, id, agent.Workspace+"/.", dest); err != nil {
		return fault.Wrap(fault.ArenaRunFailed, err, "ship workspace for %s", agent.ID)
	}

	manifest := round.AgentManifest{
		ID:        agent.ID,
		ArenaID:   p.Arena.ArenaID,
		Provider:  agent.Provider,
		Workspace: dest,
		Model:     agent.Model,
		Artifact:  agent.Artifact,
	}
	path := filepath.Join(staging, "agent-"+agent.ID+".json")
	if err := artifacts.WriteJSON(path, manifest); err != nil {
		return err
	}
	if err := p.Runtime.CopyTo(ctx, id, path, containerInputs+"/agent-"+agent.ID+".json"); err != nil {
		return fault.Wrap(fault.ArenaRunFailed, err, "ship manifest for %s", agent.ID)
	}
	return nil
}
