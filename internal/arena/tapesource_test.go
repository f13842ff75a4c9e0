package arena

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/fault"
	"solclash/internal/tape"
)

func writeBars(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bars.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"symbol":"SOL-PERP","bar_start_ts_ms":0,"bar_end_ts_ms":60000,"open":100,"high":101,"low":99,"close":100,"volume":10}
	]`), 0o644))
	return path
}

func TestLoadTapeExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	path := writeBars(t, dir)
	cfg := validConfig()
	cfg.TapeSource = &TapeSource{Type: TapeSynthetic, Seed: "never-used"}

	tp, err := LoadTape(context.Background(), cfg, path, nil)
	require.NoError(t, err)
	require.Len(t, tp.Bars, 1)
	assert.Equal(t, 100.0, tp.Bars[0].Open)
}

func TestLoadTapeSynthetic(t *testing.T) {
	cfg := validConfig()
	cfg.TapeSource = &TapeSource{Type: TapeSynthetic, Seed: "gen-1", Params: tape.GenParams{Bars: 12}}
	tp, err := LoadTape(context.Background(), cfg, "", nil)
	require.NoError(t, err)
	assert.Len(t, tp.Bars, 12)

	again, err := LoadTape(context.Background(), cfg, "", nil)
	require.NoError(t, err)
	assert.Equal(t, tp.Bars, again.Bars)
}

func TestLoadTapeDatasetFromCache(t *testing.T) {
	want := &tape.Tape{Bars: []tape.Bar{{Symbol: "SOL-PERP", Open: 5, High: 6, Low: 4, Close: 5, Volume: 1, EndTSMS: 60000}}}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("tape:ds-7").SetVal(string(raw))

	cfg := validConfig()
	cfg.TapeSource = &TapeSource{Type: TapeHistorical, DatasetID: "ds-7"}
	tp, err := LoadTape(context.Background(), cfg, "", tape.NewCache(db, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, want.Bars, tp.Bars)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTapeDatasetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet("tape:ds-8").RedisNil()

	cfg := validConfig()
	cfg.TapeSource = &TapeSource{Type: TapeHistorical, DatasetID: "ds-8"}
	_, err := LoadTape(context.Background(), cfg, "", tape.NewCache(db, time.Minute))
	require.Error(t, err)
	assert.Equal(t, fault.TapeMissing, fault.KindOf(err))
}

func TestLoadTapeNoSource(t *testing.T) {
	cfg := validConfig()
	cfg.TapeSource = nil
	_, err := LoadTape(context.Background(), cfg, "", nil)
	require.Error(t, err)
	assert.Equal(t, fault.TapeMissing, fault.KindOf(err))
}

func TestLoadTapeHistoricalPathPopulatesCache(t *testing.T) {
	dir := t.TempDir()
	path := writeBars(t, dir)

	tp, err := tape.Load(path)
	require.NoError(t, err)
	raw, err := json.Marshal(tp)
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	mock.ExpectSet("tape:ds-9", raw, time.Minute).SetVal("OK")

	cfg := validConfig()
	cfg.TapeSource = &TapeSource{Type: TapeHistorical, DatasetID: "ds-9", Path: path}
	got, err := LoadTape(context.Background(), cfg, "", tape.NewCache(db, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, tp.Bars, got.Bars)
	require.NoError(t, mock.ExpectationsWereMet())
}
