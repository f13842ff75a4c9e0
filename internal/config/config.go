// Package config loads the tournament-level configuration file: who
// competes, how many rounds, where artifacts land, and the knobs of the
// edit and competition phases. Arena rules live in their own JSON file; this
// file is the YAML wrapper around one whole tournament.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"solclash/internal/fault"
)

// Agent providers. Builtin agents are baselines and never edited; every
// other provider names the LLM backend the edit runner talks to.
const (
	ProviderBuiltin   = "builtin"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderKimi      = "kimi"
	ProviderGLM       = "glm"
)

// Where competition rounds execute.
const (
	RuntimeInProc    = "inproc"
	RuntimeContainer = "container"
)

// Container backends.
const (
	BackendDocker = "docker"
	BackendHost   = "host"
)

// Agent declares one tournament participant.
type Agent struct {
	ID        string `yaml:"id" json:"id"`
	Provider  string `yaml:"provider" json:"provider"`
	Workspace string `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	Artifact  string `yaml:"artifact,omitempty" json:"artifact,omitempty"`
}

// Builtin reports whether the agent is a baseline rather than an edited
// workspace.
func (a Agent) Builtin() bool { return strings.EqualFold(a.Provider, ProviderBuiltin) }

// NetworkPolicy is forwarded verbatim to the edit runner, whose pre-tool-use
// hook is the only thing that enforces it.
type NetworkPolicy struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Allowlist []string `yaml:"allowlist" json:"allowlist"`
}

// Edit configures the per-round edit phase.
type Edit struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	FirstRound      bool          `yaml:"first_round" json:"first_round"`
	Prompt          string        `yaml:"prompt" json:"prompt"`
	MaxTurns        int           `yaml:"max_turns" json:"max_turns"`
	Tools           []string      `yaml:"tools,omitempty" json:"tools,omitempty"`
	Sandbox         bool          `yaml:"sandbox" json:"sandbox"`
	Network         NetworkPolicy `yaml:"network" json:"network"`
	SettingsSources []string      `yaml:"settings_sources,omitempty" json:"settings_sources,omitempty"`
	Concurrency     int           `yaml:"concurrency" json:"concurrency"`
	TimeoutMS       int64         `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	Image           string        `yaml:"image" json:"image"`
	Runner          string        `yaml:"runner" json:"runner"`
	Model           string        `yaml:"model,omitempty" json:"model,omitempty"`
}

// Compete configures the containerized competition phase. Runner is the
// argv prefix of the inner round runner baked into the arena image.
type Compete struct {
	Image  string   `yaml:"image" json:"image"`
	Runner []string `yaml:"runner,omitempty" json:"runner,omitempty"`
}

// Harness locates the native policy runner binary.
type Harness struct {
	Bin              string  `yaml:"bin,omitempty" json:"bin,omitempty"`
	ComputeUnitLimit *uint64 `yaml:"compute_unit_limit,omitempty" json:"compute_unit_limit,omitempty"`
}

// Config is one tournament configuration file.
type Config struct {
	TournamentID  string  `yaml:"tournament_id" json:"tournament_id"`
	Rounds        int     `yaml:"rounds" json:"rounds"`
	Runtime       string  `yaml:"runtime" json:"runtime"`
	Backend       string  `yaml:"backend,omitempty" json:"backend,omitempty"`
	OutputDir     string  `yaml:"output_dir" json:"output_dir"`
	ArenaConfig   string  `yaml:"arena_config" json:"arena_config"`
	Bars          string  `yaml:"bars,omitempty" json:"bars,omitempty"`
	Agents        []Agent `yaml:"agents" json:"agents"`
	Edit          Edit    `yaml:"edit" json:"edit"`
	Compete       Compete `yaml:"compete" json:"compete"`
	MonitorListen string  `yaml:"monitor_listen,omitempty" json:"monitor_listen,omitempty"`
	PostgresDSN   string  `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
	RedisAddr     string  `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	Harness       Harness `yaml:"harness" json:"harness"`
}

// Load reads and validates a tournament configuration. Relative paths
// resolve against the config file's directory; empty DSN and Redis fields
// fall back to SOLCLASH_PG_DSN and SOLCLASH_REDIS_ADDR from the environment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "read tournament config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "parse tournament config %s", path)
	}
	cfg.applyDefaults()

	base := filepath.Dir(path)
	cfg.OutputDir = resolvePath(base, cfg.OutputDir)
	cfg.ArenaConfig = resolvePath(base, cfg.ArenaConfig)
	cfg.Bars = resolvePath(base, cfg.Bars)
	for i := range cfg.Agents {
		cfg.Agents[i].Workspace = resolvePath(base, cfg.Agents[i].Workspace)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Config) applyDefaults() {
	if c.Rounds == 0 {
		c.Rounds = 1
	}
	if c.Runtime == "" {
		c.Runtime = RuntimeInProc
	}
	if c.Backend == "" {
		c.Backend = BackendDocker
	}
	if c.Edit.Concurrency == 0 {
		c.Edit.Concurrency = 1
	}
	if c.Edit.Prompt == "" {
		c.Edit.Prompt = "default"
	}
	if c.PostgresDSN == "" {
		c.PostgresDSN = os.Getenv("SOLCLASH_PG_DSN")
	}
	if c.RedisAddr == "" {
		c.RedisAddr = os.Getenv("SOLCLASH_REDIS_ADDR")
	}
}

func knownProvider(p string) bool {
	switch strings.ToLower(p) {
	case ProviderBuiltin, ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderKimi, ProviderGLM:
		return true
	}
	return false
}

// Validate enforces the cross-field invariants of a tournament
// configuration.
func (c *Config) Validate() error {
	switch {
	case c.TournamentID == "":
		return fault.New(fault.ConfigInvalid, "tournament_id is required")
	case c.Rounds < 1:
		return fault.New(fault.ConfigInvalid, "rounds must be at least 1")
	case c.Runtime != RuntimeInProc && c.Runtime != RuntimeContainer:
		return fault.New(fault.ConfigInvalid, "runtime %q is not inproc or container", c.Runtime)
	case c.Backend != BackendDocker && c.Backend != BackendHost:
		return fault.New(fault.ConfigInvalid, "backend %q is not docker or host", c.Backend)
	case c.OutputDir == "":
		return fault.New(fault.ConfigInvalid, "output_dir is required")
	case c.ArenaConfig == "":
		return fault.New(fault.ConfigInvalid, "arena_config is required")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fault.New(fault.ConfigInvalid, "agent without id")
		}
		if seen[a.ID] {
			return fault.New(fault.ConfigInvalid, "duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if !knownProvider(a.Provider) {
			return fault.New(fault.ConfigInvalid, "agent %s: unknown provider %q", a.ID, a.Provider)
		}
		if !a.Builtin() && a.Workspace == "" {
			return fault.New(fault.ConfigInvalid, "agent %s: provider %s requires a workspace", a.ID, a.Provider)
		}
	}

	if c.Edit.Enabled {
		switch {
		case c.Edit.Concurrency < 1:
			return fault.New(fault.ConfigInvalid, "edit.concurrency must be at least 1")
		case c.Edit.Runner == "":
			return fault.New(fault.ConfigInvalid, "edit.runner is required when the edit phase is enabled")
		case c.Edit.Prompt == "":
			return fault.New(fault.ConfigInvalid, "edit.prompt is required when the edit phase is enabled")
		case c.Edit.TimeoutMS < 0:
			return fault.New(fault.ConfigInvalid, "edit.timeout_ms must be non-negative")
		}
		if c.Backend == BackendDocker && c.Edit.Image == "" {
			return fault.New(fault.ConfigInvalid, "edit.image is required on the docker backend")
		}
	}

	if c.Runtime == RuntimeContainer {
		if c.Backend == BackendDocker && c.Compete.Image == "" {
			return fault.New(fault.ConfigInvalid, "compete.image is required for container rounds on the docker backend")
		}
	}
	return nil
}

// NonBuiltinAgents filters the roster down to editable workspaces.
func (c *Config) NonBuiltinAgents() []Agent {
	out := make([]Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		if !a.Builtin() {
			out = append(out, a)
		}
	}
	return out
}

// InjectTargets is the deduplicated, order-preserving set of workspaces that
// receive each round's logs.
func (c *Config) InjectTargets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.Agents {
		if a.Builtin() || a.Workspace == "" || seen[a.Workspace] {
			continue
		}
		seen[a.Workspace] = true
		out = append(out, a.Workspace)
	}
	return out
}
