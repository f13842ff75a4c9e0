// Package edit runs the per-round edit phase: every non-builtin agent's
// workspace is shipped into a container, handed to an external code-editing
// runner, and captured back only when the session succeeds. Failed and
// timed-out sessions leave the workspace byte-identical.
package edit

import (
	"solclash/internal/config"
)

// Session statuses. These are also what the runner reports in
// edit_meta.json.
const (
	StatusSuccess = "success"
	StatusTimeout = "timeout"
	StatusFailure = "failure"
)

// Runner exit codes interpreted when edit_meta.json is absent.
const (
	exitSuccess = 0
	exitTimeout = 10
)

// Container paths the runner contract fixes.
const (
	containerWorkspace = "/workspace"
	containerLogs      = "/logs"
)

// Result is one agent's edit-session outcome.
type Result struct {
	AgentID      string `json:"agent_id"`
	Status       string `json:"status"`
	SessionID    string `json:"session_id,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Error        string `json:"error,omitempty"`
	LogDir       string `json:"log_dir"`
}

// Brief is the JSON document the runner reads from
// /tmp/edit-input-<id>.json.
type Brief struct {
	Round           int                  `json:"round"`
	AgentID         string               `json:"agent_id"`
	WorkspacePath   string               `json:"workspace_path"`
	SystemPrompt    string               `json:"system_prompt"`
	MaxTurns        int                  `json:"max_turns"`
	ToolAllowlist   []string             `json:"tool_allowlist"`
	SandboxEnabled  bool                 `json:"sandbox_enabled"`
	NetworkPolicy   config.NetworkPolicy `json:"network_policy"`
	SettingsSources []string             `json:"settings_sources"`
	TimeoutMS       int64                `json:"timeout_ms,omitempty"`
	Model           string               `json:"model,omitempty"`
	PromptRef       string               `json:"prompt_ref"`
	PromptSHA256    string               `json:"prompt_sha256"`
	PromptPath      string               `json:"prompt_path,omitempty"`
}

// Meta is edit_meta.json as written by the runner into /logs.
type Meta struct {
	AgentID      string `json:"agent_id"`
	Status       string `json:"status"`
	SessionID    string `json:"session_id,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Error        string `json:"error,omitempty"`
	PromptRef    string `json:"prompt_ref,omitempty"`
	PromptSHA256 string `json:"prompt_sha256,omitempty"`
	PromptPath   string `json:"prompt_path,omitempty"`
}

func knownStatus(s string) bool {
	switch s {
	case StatusSuccess, StatusTimeout, StatusFailure:
		return true
	}
	return false
}
