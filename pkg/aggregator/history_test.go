package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistory(t *testing.T) (*miniredis.Miniredis, *History) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, NewHistory(client, "socrates:aggr:hist", 14)
}

func TestHistorySingleDayAverageEqualsCount(t *testing.T) {
	_, history := newHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)

	require.NoError(t, history.Record(ctx, "bucket-a", 7, now))

	avg, err := history.DailyAverage(ctx, "bucket-a", now)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, avg, 1e-9)
}

func TestHistoryAveragesOverRecordedDays(t *testing.T) {
	_, history := newHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)

	require.NoError(t, history.Record(ctx, "bucket-a", 10, now.AddDate(0, 0, -2)))
	require.NoError(t, history.Record(ctx, "bucket-a", 2, now.AddDate(0, 0, -1)))
	require.NoError(t, history.Record(ctx, "bucket-a", 6, now))

	// Mean over the three recorded days inside the window.
	avg, err := history.DailyAverage(ctx, "bucket-a", now)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, avg, 1e-9)
}

func TestHistoryUnknownBucketCountsAsZero(t *testing.T) {
	_, history := newHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)

	require.NoError(t, history.Record(ctx, "bucket-a", 4, now))

	avg, err := history.DailyAverage(ctx, "bucket-b", now)
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestHistoryNoRecordedDays(t *testing.T) {
	_, history := newHistory(t)

	avg, err := history.DailyAverage(context.Background(), "bucket-a", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestHistoryAccumulatesWithinDay(t *testing.T) {
	_, history := newHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	require.NoError(t, history.Record(ctx, "bucket-a", 3, now))
	require.NoError(t, history.Record(ctx, "bucket-a", 5, now.Add(2*time.Hour)))

	avg, err := history.DailyAverage(ctx, "bucket-a", now)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, avg, 1e-9)
}

func TestHistoryPrunesStaleDays(t *testing.T) {
	srv, history := newHistory(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	stale := now.AddDate(0, 0, -20)
	require.NoError(t, history.Record(ctx, "bucket-a", 9, stale))
	assert.True(t, srv.Exists("socrates:aggr:hist:"+stale.Format("2006-01-02")))

	// Recording at now prunes days older than the window.
	require.NoError(t, history.Record(ctx, "bucket-a", 1, now))
	assert.False(t, srv.Exists("socrates:aggr:hist:"+stale.Format("2006-01-02")))

	avg, err := history.DailyAverage(ctx, "bucket-a", now)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, avg, 1e-9)
}

func TestHistoryDayHashCarriesTTL(t *testing.T) {
	srv, history := newHistory(t)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	require.NoError(t, history.Record(context.Background(), "bucket-a", 1, now))

	ttl := srv.TTL("socrates:aggr:hist:2026-08-24")
	assert.Equal(t, 16*24*time.Hour, ttl)
}
