package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"solclash/internal/fault"
)

// DefaultPromptRef selects the built-in prompt generator.
const DefaultPromptRef = "default"

// Prompt is a resolved system prompt plus its provenance. The digest is
// recorded in the brief and in edit_meta.json so a session's exact
// instructions stay auditable.
type Prompt struct {
	Ref     string
	Path    string
	Content string
	SHA256  string
}

// ResolvePrompt turns a prompt reference into content. "default" generates a
// round-aware prompt; a value containing a path separator or ending in
// .md/.txt is read from disk; anything else is rejected.
func ResolvePrompt(ref string, roundNum int, agentID string) (Prompt, error) {
	if ref == DefaultPromptRef {
		content := defaultPrompt(roundNum, agentID)
		return Prompt{Ref: ref, Content: content, SHA256: digest(content)}, nil
	}
	if strings.Contains(ref, "/") || strings.HasSuffix(ref, ".md") || strings.HasSuffix(ref, ".txt") {
		raw, err := os.ReadFile(ref)
		if err != nil {
			return Prompt{}, fault.Wrap(fault.ConfigInvalid, err, "read prompt file %s", ref)
		}
		content := string(raw)
		return Prompt{Ref: ref, Path: ref, Content: content, SHA256: digest(content)}, nil
	}
	return Prompt{}, fault.New(fault.ConfigInvalid, "prompt ref %q is neither %q nor a prompt file", ref, DefaultPromptRef)
}

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// defaultPrompt generates the built-in editing instructions. Round 1 has no
// prior logs to consult; later rounds point the editor at the previous
// round's injected artifacts.
func defaultPrompt(roundNum int, agentID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are improving the trading policy of agent %s for round %d of a simulated perpetual-futures tournament.\n\n", agentID, roundNum)
	b.WriteString("The policy source lives in this workspace. Each simulation step it receives the recent bars, the account state, and the margin rules, and must answer HOLD, BUY, SELL, or CLOSE with an order quantity.\n")
	b.WriteString("Scoring rewards profit and penalizes drawdown and exposure. Orders that violate initial margin or leverage limits are dropped, and positions below maintenance margin are force-liquidated at a fee.\n\n")
	if roundNum <= 1 {
		b.WriteString("This is the first round, so there are no prior results to consult. Read the existing policy, fix anything broken, and make its behavior deliberate.\n")
	} else {
		fmt.Fprintf(&b, "Results of the previous round are under logs/rounds/%d/ in this workspace: summary.json, round_results.json, and per-agent policy_log.jsonl, trade_log.jsonl, equity_log.jsonl, and liquidation_log.jsonl.\n", roundNum-1)
		b.WriteString("Study where the policy lost money, was rejected, or was liquidated, and change it accordingly.\n")
	}
	b.WriteString("\nKeep the build working; the compiled policy artifact must remain loadable after your changes.\n")
	return b.String()
}
