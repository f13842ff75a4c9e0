package tape

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet("tape:ds1").RedisNil()

	c := NewCache(db, time.Minute)
	tp, hit, err := c.Get(context.Background(), "ds1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, tp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheHit(t *testing.T) {
	want := &Tape{Bars: flatBars(3, 100, 10)}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("tape:ds2").SetVal(string(raw))

	c := NewCache(db, time.Minute)
	got, hit, err := c.Get(context.Background(), "ds2")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want.Bars, got.Bars)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachePut(t *testing.T) {
	tp := &Tape{Bars: flatBars(2, 50, 5)}
	raw, err := json.Marshal(tp)
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	mock.ExpectSet("tape:ds3", raw, time.Minute).SetVal("OK")

	c := NewCache(db, time.Minute)
	require.NoError(t, c.Put(context.Background(), "ds3", tp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheNilClientDisabled(t *testing.T) {
	var c *Cache
	_, hit, err := c.Get(context.Background(), "ds")
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, c.Put(context.Background(), "ds", &Tape{}))
}
