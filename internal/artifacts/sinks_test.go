package artifacts

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	WindowID  string `json:"window_id"`
	StepIndex int    `json:"step_index"`
	AgentID   string `json:"agent_id"`
}

func readLines(t *testing.T, path string) []testRecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []testRecord
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var rec testRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSinksAppendAndLayout(t *testing.T) {
	dir := t.TempDir()
	sinks := NewSinks(dir)

	require.NoError(t, sinks.Append("alpha", KindPolicy, testRecord{WindowID: "w0", StepIndex: 0, AgentID: "alpha"}))
	require.NoError(t, sinks.Append("alpha", KindPolicy, testRecord{WindowID: "w0", StepIndex: 1, AgentID: "alpha"}))
	require.NoError(t, sinks.Append("alpha", KindTrade, testRecord{WindowID: "w0", StepIndex: 0, AgentID: "alpha"}))
	require.NoError(t, sinks.Append("beta", KindEquity, testRecord{WindowID: "w0", StepIndex: 0, AgentID: "beta"}))
	require.NoError(t, sinks.Close())

	policy := readLines(t, filepath.Join(dir, "alpha", "policy_log.jsonl"))
	require.Len(t, policy, 2)
	assert.Equal(t, 0, policy[0].StepIndex)
	assert.Equal(t, 1, policy[1].StepIndex)

	trades := readLines(t, filepath.Join(dir, "alpha", "trade_log.jsonl"))
	assert.Len(t, trades, 1)

	equity := readLines(t, filepath.Join(dir, "beta", "equity_log.jsonl"))
	assert.Len(t, equity, 1)

	// liquidation sink never appended to, so never created
	_, err := os.Stat(filepath.Join(dir, "alpha", "liquidation_log.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestSinksAppendAcrossWindowsIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	sinks := NewSinks(dir)

	require.NoError(t, sinks.Append("alpha", KindPolicy, testRecord{WindowID: "w0", StepIndex: 0}))
	require.NoError(t, sinks.Flush())
	require.NoError(t, sinks.Append("alpha", KindPolicy, testRecord{WindowID: "w1", StepIndex: 0}))
	require.NoError(t, sinks.Close())

	recs := readLines(t, filepath.Join(dir, "alpha", "policy_log.jsonl"))
	require.Len(t, recs, 2)
	assert.Equal(t, "w0", recs[0].WindowID)
	assert.Equal(t, "w1", recs[1].WindowID)
}

func TestSinksClosedRejectsAppend(t *testing.T) {
	sinks := NewSinks(t.TempDir())
	require.NoError(t, sinks.Append("alpha", KindPolicy, testRecord{}))
	require.NoError(t, sinks.Close())

	err := sinks.Append("alpha", KindPolicy, testRecord{})
	assert.Error(t, err)

	// double close is harmless
	assert.NoError(t, sinks.Close())
}

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.json")
	in := map[string]any{"round": float64(3), "winner": "alpha"}
	require.NoError(t, WriteJSON(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"round\": 3")

	var out map[string]any
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}
