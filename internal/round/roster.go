package round

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"solclash/internal/arena"
	"solclash/internal/fault"
	"solclash/internal/harness"
	"solclash/internal/policy"
	"solclash/internal/sim"
)

// defaultArtifact is where a workspace's compiled policy lives unless the
// manifest says otherwise.
const defaultArtifact = "policy.so"

// AgentManifest describes one non-builtin agent shipped into a round.
type AgentManifest struct {
	ID        string `json:"id"`
	ArenaID   string `json:"arena_id"`
	Provider  string `json:"provider"`
	Workspace string `json:"workspace"`
	Model     string `json:"model,omitempty"`
	Artifact  string `json:"artifact,omitempty"`
}

// LoadManifests reads every agent-*.json manifest in a directory, in
// lexical order.
func LoadManifests(dir string) ([]AgentManifest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "agent-*.json"))
	if err != nil {
		return nil, err
	}
	manifests := make([]AgentManifest, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fault.Wrap(fault.WorkspaceInvalid, err, "read manifest %s", path)
		}
		var m AgentManifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fault.Wrap(fault.WorkspaceInvalid, err, "parse manifest %s", path)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// PolicyProvider loads native policy programs and hands out per-agent
// policies. Satisfied by harness.Client.
type PolicyProvider interface {
	Init(ctx context.Context, programs []harness.Program, computeUnitLimit *uint64) error
	PolicyFor(agentID string) policy.Policy
}

// Roster is the agent list of one round plus the agents that never made it.
type Roster struct {
	Agents  []sim.Agent
	Invalid map[string]string
}

// BuildRoster assembles the round's agents: the arena's builtin baselines in
// config order, then the manifest agents in manifest order. A manifest agent
// whose policy artifact is missing lands in Invalid instead of aborting the
// round. The provider is initialized once with every loadable program; it
// may be nil when no manifest agent is loadable.
func BuildRoster(ctx context.Context, cfg *arena.Config, manifests []AgentManifest, provider PolicyProvider, computeUnitLimit *uint64) (*Roster, error) {
	r := &Roster{Invalid: make(map[string]string)}

	for _, name := range cfg.Baselines {
		p, err := policy.Baseline(name)
		if err != nil {
			return nil, err
		}
		r.Agents = append(r.Agents, sim.Agent{ID: name, Policy: p})
	}

	var programs []harness.Program
	var loadable []AgentManifest
	for _, m := range manifests {
		if m.ID == "" {
			return nil, fault.New(fault.WorkspaceInvalid, "agent manifest without id")
		}
		if strings.EqualFold(m.Provider, "builtin") {
			continue
		}
		artifact := m.Artifact
		if artifact == "" {
			artifact = defaultArtifact
		}
		soPath := artifact
		if !filepath.IsAbs(soPath) {
			soPath = filepath.Join(m.Workspace, artifact)
		}
		if _, err := os.Stat(soPath); err != nil {
			r.Invalid[m.ID] = fault.New(fault.AgentArtifactMissing, "policy artifact %s: %v", soPath, err).Error()
			log.Warn().Str("agent", m.ID).Str("artifact", soPath).Msg("agent artifact missing, scoring zero")
			continue
		}
		programs = append(programs, harness.Program{ID: m.ID, SOPath: soPath})
		loadable = append(loadable, m)
	}

	if len(programs) > 0 {
		if provider == nil {
			return nil, fault.New(fault.ConfigInvalid, "native agents present but no harness configured")
		}
		if err := provider.Init(ctx, programs, computeUnitLimit); err != nil {
			return nil, err
		}
		for _, m := range loadable {
			r.Agents = append(r.Agents, sim.Agent{ID: m.ID, Policy: provider.PolicyFor(m.ID)})
		}
	}
	return r, nil
}
