package arena

import (
	"encoding/json"
	"os"
	"path/filepath"

	"solclash/internal/fault"
)

// ResolveScoringWeights returns the arena's weights. An inline object always
// wins; the reference file is consulted only when no inline weights are
// present. Relative references resolve against baseDir.
func ResolveScoringWeights(c *Config, baseDir string) (ScoringWeights, error) {
	if c.ScoringWeights != nil {
		return *c.ScoringWeights, nil
	}
	if c.ScoringWeightsRef == "" {
		return ScoringWeights{}, fault.New(fault.ScoringWeightsInvalid, "no scoring weights configured")
	}
	path := c.ScoringWeightsRef
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ScoringWeights{}, fault.Wrap(fault.ScoringWeightsInvalid, err, "read scoring weights %s", path)
	}
	var w ScoringWeights
	if err := json.Unmarshal(raw, &w); err != nil {
		return ScoringWeights{}, fault.Wrap(fault.ScoringWeightsInvalid, err, "parse scoring weights %s", path)
	}
	return w, nil
}
