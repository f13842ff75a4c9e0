// Package fault classifies the error conditions the tournament runner
// distinguishes between. A Kind tells callers whether a failure aborts the
// process, fails the current round, or is recovered locally and only
// surfaces in logs.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies one failure class.
type Kind string

const (
	ConfigInvalid            Kind = "config_invalid"
	ScoringWeightsInvalid    Kind = "scoring_weights_invalid"
	TapeMissing              Kind = "tape_missing"
	TapeSchemaInvalid        Kind = "tape_schema_invalid"
	NoWindows                Kind = "no_windows"
	InsufficientValidWindows Kind = "insufficient_valid_windows"
	PolicyException          Kind = "policy_exception"
	PolicyOutputInvalid      Kind = "policy_output_invalid"
	MarginOrLeverageRejected Kind = "margin_or_leverage_rejected"
	AgentBuildFailed         Kind = "agent_build_failed"
	AgentArtifactMissing     Kind = "agent_artifact_missing"
	WorkspaceInvalid         Kind = "workspace_invalid"
	EditSessionTimeout       Kind = "edit_session_timeout"
	EditSessionFailure       Kind = "edit_session_failure"
	HarnessGone              Kind = "harness_gone"
	HarnessProtocolViolation Kind = "harness_protocol_violation"
	ArenaRunFailed           Kind = "arena_run_failed"
)

// Error carries a Kind alongside a message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with no cause.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil cause returns nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or the empty Kind when none is found.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}

// IsFatal reports whether a kind aborts the whole run rather than a single
// round or agent.
func IsFatal(kind Kind) bool {
	switch kind {
	case ConfigInvalid, ScoringWeightsInvalid, TapeMissing, TapeSchemaInvalid,
		NoWindows, InsufficientValidWindows:
		return true
	}
	return false
}
