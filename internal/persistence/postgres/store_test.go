package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/round"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "sqlmock"), time.Second), mock
}

func TestSaveRoundUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	winner := "alpha"
	meta := round.Meta{RoundStartTS: 100, RoundEndTS: 200, Winner: &winner, Scores: map[string]float64{"alpha": 1.5}}
	results := map[string]*round.Metrics{
		"alpha": {AgentID: "alpha", PnLTotal: 42, Score: 1.5},
	}
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	resultsJSON, err := json.Marshal(results)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO tournament_rounds").
		WithArgs("T1", 3, metaJSON, resultsJSON).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveRound(context.Background(), "T1", 3, meta, results))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRoundSurfacesServerDetail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO tournament_rounds").
		WillReturnError(&pq.Error{Code: "23514", Message: "check violation", Detail: "score out of range"})

	err := store.SaveRound(context.Background(), "T1", 3, round.Meta{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save round 3 of T1")
	assert.Contains(t, err.Error(), "score out of range")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTournamentStoresAgentArray(t *testing.T) {
	store, mock := newMockStore(t)

	record := map[string]any{"rounds": 2}
	recordJSON, err := json.Marshal(record)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO tournaments").
		WithArgs("T1", pq.Array([]string{"alpha", "beta"}), recordJSON).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveTournament(context.Background(), "T1", []string{"alpha", "beta"}, record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaIsIdempotentDDL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tournament_rounds").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseReleasesPool(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectClose()
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
