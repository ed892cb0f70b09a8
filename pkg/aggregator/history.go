package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// History keeps rolling per-day counts per bucket key in Redis: a sorted
// set indexes the day keys by midnight epoch, and each day is a hash of
// bucket_key → count. Day hashes expire two days after falling out of the
// window.
type History struct {
	client *redis.Client
	prefix string
	days   int
}

// NewHistory creates a history store under the given key prefix.
func NewHistory(client *redis.Client, prefix string, days int) *History {
	return &History{client: client, prefix: prefix, days: days}
}

func (h *History) daysIndexKey() string {
	return h.prefix + ":days"
}

func (h *History) dayHashKey(day string) string {
	return h.prefix + ":" + day
}

// DailyAverage returns the bucket's mean daily count over the recorded
// days inside the window, today included. No recorded days means 0.
func (h *History) DailyAverage(ctx context.Context, bucketKey string, now time.Time) (float64, error) {
	endDay := midnightUTC(now)
	startDay := endDay.AddDate(0, 0, -(h.days - 1))

	dayKeys, err := h.client.ZRangeByScore(ctx, h.daysIndexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(startDay.Unix(), 10),
		Max: strconv.FormatInt(endDay.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading history day index: %w", err)
	}
	if len(dayKeys) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.StringCmd, len(dayKeys))
	_, err = h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, day := range dayKeys {
			cmds[i] = pipe.HGet(ctx, h.dayHashKey(day), bucketKey)
		}
		return nil
	})
	// redis.Nil just means the bucket had no count on some day.
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("reading history day counts: %w", err)
	}

	total := 0
	for _, cmd := range cmds {
		if v, err := cmd.Int(); err == nil {
			total += v
		}
	}
	return float64(total) / float64(len(dayKeys)), nil
}

// Record adds a flushed bucket's count to its event day and prunes days
// that fell out of the window.
func (h *History) Record(ctx context.Context, bucketKey string, count int, eventTime time.Time) error {
	day := eventTime.UTC().Format("2006-01-02")
	dayEpoch := midnightUTC(eventTime)
	hashKey := h.dayHashKey(day)

	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, hashKey, bucketKey, int64(count))
		pipe.ZAdd(ctx, h.daysIndexKey(), redis.Z{Score: float64(dayEpoch.Unix()), Member: day})
		pipe.Expire(ctx, hashKey, time.Duration(h.days+2)*24*time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording history for day %s: %w", day, err)
	}

	return h.pruneOldDays(ctx, eventTime)
}

func (h *History) pruneOldDays(ctx context.Context, now time.Time) error {
	cutoff := midnightUTC(now).AddDate(0, 0, -h.days)
	cutoffScore := strconv.FormatInt(cutoff.Unix(), 10)

	staleDays, err := h.client.ZRangeByScore(ctx, h.daysIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoffScore,
	}).Result()
	if err != nil {
		return fmt.Errorf("scanning stale history days: %w", err)
	}
	if len(staleDays) == 0 {
		return nil
	}

	_, err = h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, day := range staleDays {
			pipe.Del(ctx, h.dayHashKey(day))
		}
		pipe.ZRemRangeByScore(ctx, h.daysIndexKey(), "-inf", cutoffScore)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pruning stale history days: %w", err)
	}
	return nil
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
