package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/metrics"
	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/queue"
)

const stageName = "module1"

// Stage is the aggregation and scoring worker: pop raw alert → normalize →
// bucket; between pops, flush idle buckets, score them, and route the
// aggregated alerts by threshold.
type Stage struct {
	normalizer *Normalizer
	aggregator *Aggregator
	scorer     *Scorer
	catalog    *AssetCatalog
	history    *History

	output     *queue.Buffer
	suppressed *queue.Buffer
	runner     *queue.Runner

	now           func() time.Time
	flushInterval time.Duration
	lastFlush     time.Time
}

// NewStage wires the module 1 worker. The asset catalog is loaded once at
// startup; a missing file yields the default profiles.
func NewStage(cfg config.Module1Config, client *redis.Client, input, output, suppressed *queue.Buffer) (*Stage, error) {
	catalog, err := LoadAssetCatalog(cfg.Asset.TablePath)
	if err != nil {
		return nil, fmt.Errorf("loading asset catalog %s: %w", cfg.Asset.TablePath, err)
	}

	s := &Stage{
		normalizer:    NewNormalizer(),
		aggregator:    NewAggregator(time.Duration(cfg.Aggregation.WindowS)*time.Second, cfg.Aggregation.MaxRefIDs),
		scorer:        NewScorer(cfg.Scoring),
		catalog:       catalog,
		history:       NewHistory(client, cfg.History.KeyPrefix, cfg.Aggregation.HistoryDays),
		output:        output,
		suppressed:    suppressed,
		now:           time.Now,
		flushInterval: config.Seconds(cfg.Aggregation.FlushIntervalS),
	}
	s.runner = queue.NewRunner(queue.RunnerOptions{
		Name:       stageName,
		Input:      input,
		PopTimeout: time.Duration(cfg.Aggregation.PopTimeoutS) * time.Second,
		Handle:     s.handle,
		Tick:       s.tick,
	})
	return s, nil
}

// Start begins the stage loop in a goroutine.
func (s *Stage) Start(ctx context.Context) {
	s.runner.Start(ctx)
}

// Stop stops the loop and drains every open bucket through scoring, so a
// shutdown loses no aggregation state.
func (s *Stage) Stop() {
	s.runner.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.routeSnapshots(ctx, s.aggregator.ForceFlush())
}

// Run blocks until ctx is cancelled, then stops and force-flushes.
func (s *Stage) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Stage) handle(_ context.Context, payload models.RawAlert) error {
	metrics.StageConsumed.WithLabelValues(stageName).Inc()
	s.aggregator.Add(s.normalizer.Normalize(payload))
	return nil
}

// tick flushes expired buckets, rate-limited to the flush interval so the
// sweep does not run on every pop.
func (s *Stage) tick(ctx context.Context) {
	now := s.now()
	if now.Sub(s.lastFlush) < s.flushInterval {
		return
	}
	s.lastFlush = now
	s.routeSnapshots(ctx, s.aggregator.FlushExpired(now))
}

func (s *Stage) routeSnapshots(ctx context.Context, snapshots []*models.BucketSnapshot) {
	for _, snapshot := range snapshots {
		metrics.BucketsFlushed.Inc()
		if err := s.routeSnapshot(ctx, snapshot); err != nil {
			slog.Error("Failed to route aggregated alert, dropping",
				"stage", stageName, "bucket_key", snapshot.BucketKey, "error", err)
			metrics.StageDropped.WithLabelValues(stageName).Inc()
		}
	}
}

// routeSnapshot scores one snapshot and publishes it. The history average
// is read before this window's count is recorded, so the bucket's own
// burst does not dilute its rarity.
func (s *Stage) routeSnapshot(ctx context.Context, snapshot *models.BucketSnapshot) error {
	now := s.now()

	historicalAvg, err := s.history.DailyAverage(ctx, snapshot.BucketKey, now)
	if err != nil {
		slog.Warn("History read failed, treating bucket as novel",
			"stage", stageName, "bucket_key", snapshot.BucketKey, "error", err)
		historicalAvg = 0
	}

	profile := s.catalog.Resolve(snapshot.DIP)
	score := s.scorer.Score(snapshot, historicalAvg, profile)

	if err := s.history.Record(ctx, snapshot.BucketKey, snapshot.Count, snapshot.WindowEnd); err != nil {
		slog.Warn("History record failed",
			"stage", stageName, "bucket_key", snapshot.BucketKey, "error", err)
	}

	alert := models.AggregatedAlert{
		SIP:             snapshot.SIP,
		DIP:             snapshot.DIP,
		Proto:           snapshot.Proto,
		RuleName:        snapshot.RuleName,
		LogType:         snapshot.LogType,
		ReferenceUUIDs:  snapshot.RawRefIDs,
		AggregatedCount: snapshot.Count,
		FirstSeen:       snapshot.WindowStart.Unix(),
		LastSeen:        snapshot.WindowEnd.Unix(),
		URITemplate:     snapshot.URITemplate,
		RiskScores:      score,
	}

	dest := s.suppressed
	if s.scorer.IsHighPriority(score) {
		dest = s.output
	}
	if err := dest.Push(ctx, alert); err != nil {
		return err
	}
	metrics.StageRouted.WithLabelValues(stageName, dest.Key()).Inc()
	return nil
}
