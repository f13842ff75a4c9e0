package tape

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"solclash/internal/fault"
)

// Load reads a bar file. ".json" holds either a bare bar array or an
// {instrument, bars} object; ".jsonl" holds one bar per line, optionally
// preceded by an {"instrument": {...}} header line.
func Load(path string) (*Tape, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(fault.TapeMissing, err, "open %s", path)
		}
		return nil, fault.Wrap(fault.TapeMissing, err, "read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return parseJSONL(raw, path)
	default:
		return parseJSON(raw, path)
	}
}

func parseJSON(raw []byte, path string) (*Tape, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fault.New(fault.TapeSchemaInvalid, "%s: empty file", path)
	}
	if trimmed[0] == '[' {
		var bars []Bar
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, fault.Wrap(fault.TapeSchemaInvalid, err, "parse %s", path)
		}
		return &Tape{Bars: bars}, nil
	}
	var t Tape
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fault.Wrap(fault.TapeSchemaInvalid, err, "parse %s", path)
	}
	if t.Bars == nil {
		return nil, fault.New(fault.TapeSchemaInvalid, "%s: missing bars field", path)
	}
	return &t, nil
}

type jsonlHeader struct {
	Instrument *Instrument `json:"instrument"`
}

func parseJSONL(raw []byte, path string) (*Tape, error) {
	t := &Tape{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		lineNo++
		if len(line) == 0 {
			continue
		}
		if lineNo == 1 {
			var hdr jsonlHeader
			if err := json.Unmarshal(line, &hdr); err == nil && hdr.Instrument != nil {
				t.Instrument = hdr.Instrument
				continue
			}
		}
		var b Bar
		if err := json.Unmarshal(line, &b); err != nil {
			return nil, fault.Wrap(fault.TapeSchemaInvalid, err, "parse %s line %d", path, lineNo)
		}
		t.Bars = append(t.Bars, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(fault.TapeSchemaInvalid, err, "scan %s", path)
	}
	return t, nil
}
