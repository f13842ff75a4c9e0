package arena

import (
	"context"

	"github.com/rs/zerolog/log"

	"solclash/internal/fault"
	"solclash/internal/tape"
)

// LoadTape materializes the bars for a round. An explicit path always wins;
// otherwise the tape source decides: historical sources read from disk or
// the warm cache by dataset id, synthetic sources generate from their seed.
func LoadTape(ctx context.Context, c *Config, explicitPath string, cache *tape.Cache) (*tape.Tape, error) {
	if explicitPath != "" {
		return tape.Load(explicitPath)
	}
	src := c.TapeSource
	if src == nil {
		return nil, fault.New(fault.TapeMissing, "arena %s has no bars path and no tape_source", c.ArenaID)
	}
	switch src.Type {
	case TapeHistorical:
		if src.Path != "" {
			t, err := tape.Load(src.Path)
			if err != nil {
				return nil, err
			}
			if src.DatasetID != "" {
				if cerr := cache.Put(ctx, src.DatasetID, t); cerr != nil {
					log.Warn().Err(cerr).Str("dataset", src.DatasetID).Msg("tape cache put failed")
				}
			}
			return t, nil
		}
		t, hit, err := cache.Get(ctx, src.DatasetID)
		if err != nil {
			return nil, fault.Wrap(fault.TapeMissing, err, "dataset %s", src.DatasetID)
		}
		if !hit {
			return nil, fault.New(fault.TapeMissing, "dataset %s not found in tape cache", src.DatasetID)
		}
		return t, nil
	case TapeSynthetic:
		return &tape.Tape{Bars: tape.Generate(src.Seed, src.Params)}, nil
	default:
		return nil, fault.New(fault.ConfigInvalid, "tape_source.type %q is not historical or synthetic", src.Type)
	}
}
