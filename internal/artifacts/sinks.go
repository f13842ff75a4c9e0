// Package artifacts persists round outputs: append-only JSONL log sinks per
// agent and kind, plus whole-file JSON documents for summaries and metadata.
package artifacts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Log sink kinds.
const (
	KindPolicy      = "policy_log"
	KindTrade       = "trade_log"
	KindEquity      = "equity_log"
	KindLiquidation = "liquidation_log"
)

type sinkFile struct {
	file *os.File
	buf  *bufio.Writer
}

// Sinks owns the JSONL appenders of one round. A sink opens on first append
// under <dir>/<agent_id>/<kind>.jsonl and stays open until Close; a closed
// set of sinks never reopens.
type Sinks struct {
	dir    string
	files  map[string]*sinkFile
	closed bool
}

// NewSinks creates the sink set rooted at a round directory.
func NewSinks(dir string) *Sinks {
	return &Sinks{dir: dir, files: make(map[string]*sinkFile)}
}

func (s *Sinks) sink(agentID, kind string) (*sinkFile, error) {
	key := agentID + "/" + kind
	if sf, ok := s.files[key]; ok {
		return sf, nil
	}
	agentDir := filepath.Join(s.dir, agentID)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create agent log directory: %w", err)
	}
	path := filepath.Join(agentDir, kind+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log sink %s: %w", path, err)
	}
	sf := &sinkFile{file: file, buf: bufio.NewWriter(file)}
	s.files[key] = sf
	return sf, nil
}

// Append writes one record as a JSON line to the agent's sink of the given
// kind.
func (s *Sinks) Append(agentID, kind string, record any) error {
	if s.closed {
		return fmt.Errorf("log sinks already closed")
	}
	sf, err := s.sink(agentID, kind)
	if err != nil {
		return err
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}
	if _, err := sf.buf.Write(line); err != nil {
		return fmt.Errorf("failed to write %s record: %w", kind, err)
	}
	if err := sf.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush pushes buffered lines to disk. Called at window boundaries so a
// round's progress survives a later failure.
func (s *Sinks) Flush() error {
	for key, sf := range s.files {
		if err := sf.buf.Flush(); err != nil {
			return fmt.Errorf("failed to flush sink %s: %w", key, err)
		}
	}
	return nil
}

// Close flushes and closes every sink in deterministic order. The set
// cannot be reused afterwards.
func (s *Sinks) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	keys := make([]string, 0, len(s.files))
	for key := range s.files {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var firstErr error
	for _, key := range keys {
		sf := s.files[key]
		if err := sf.buf.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to flush sink %s: %w", key, err)
		}
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close sink %s: %w", key, err)
		}
	}
	return firstErr
}
