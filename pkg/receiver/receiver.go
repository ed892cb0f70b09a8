// Package receiver streams alert documents out of the search index and
// republishes each _source onto the shared alerts queue.
package receiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/metrics"
	"github.com/socrates-soc/socrates/pkg/queue"
	"github.com/socrates-soc/socrates/pkg/search"
)

// Searcher is the slice of the search client the receiver uses.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*search.Result, error)
}

// Stage is the forward-only index-to-queue pump. The search_after cursor
// only advances past documents that were pushed; index or queue failures
// leave it in place so the next pass re-reads from the same position.
type Stage struct {
	searcher     Searcher
	output       *queue.Buffer
	index        string
	sortField    string
	batchSize    int
	pollInterval time.Duration
	startTime    string

	cursor []any

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a receiver stage.
func New(cfg config.ReceiverElasticConfig, searcher Searcher, output *queue.Buffer) *Stage {
	return &Stage{
		searcher:     searcher,
		output:       output,
		index:        cfg.Index,
		sortField:    cfg.SortField,
		batchSize:    cfg.BatchSize,
		pollInterval: config.Seconds(cfg.PollIntervalS),
		startTime:    cfg.StartTime,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the streaming loop in a goroutine.
func (s *Stage) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the stage to stop and waits for the loop to finish.
// It is safe to call Stop multiple times.
func (s *Stage) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Run blocks until ctx is cancelled, then stops the loop.
func (s *Stage) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Stage) run(ctx context.Context) {
	defer s.wg.Done()

	log := slog.With("stage", "receiver", "index", s.index, "queue", s.output.Key())
	log.Info("Receiver started", "sort_field", s.sortField, "batch_size", s.batchSize)

	for {
		select {
		case <-s.stopCh:
			log.Info("Receiver shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, receiver shutting down")
			return
		default:
			s.pump(ctx, log)
		}
	}
}

// pump runs one search pass and publishes its hits.
func (s *Stage) pump(ctx context.Context, log *slog.Logger) {
	res, err := s.searcher.Search(ctx, s.index, s.buildBody())
	if err != nil {
		if ctx.Err() == nil {
			log.Error("Index search failed, retrying", "error", err)
			s.sleep(s.pollInterval)
		}
		return
	}

	if len(res.Hits) == 0 {
		s.sleep(s.pollInterval)
		return
	}

	for _, hit := range res.Hits {
		if err := s.output.Push(ctx, hit.Source); err != nil {
			// Cursor stays at the last published document; the next pass
			// re-reads from there.
			log.Error("Queue push failed, retrying from cursor", "error", err)
			s.sleep(s.pollInterval)
			return
		}
		s.cursor = hit.Sort
		metrics.ReceiverPublished.Inc()
	}
}

// buildBody assembles the forward-stream query. The secondary sort key
// breaks ties so search_after pagination is stable.
func (s *Stage) buildBody() map[string]any {
	var query map[string]any
	if s.startTime == "" {
		query = map[string]any{"match_all": map[string]any{}}
	} else {
		query = map[string]any{
			"range": map[string]any{
				s.sortField: map[string]any{"gte": s.startTime},
			},
		}
	}

	body := map[string]any{
		"query": query,
		"sort": []any{
			map[string]any{s.sortField: "asc"},
			map[string]any{"_shard_doc": "asc"},
		},
		"size": s.batchSize,
	}
	if s.cursor != nil {
		body["search_after"] = s.cursor
	}
	return body
}

// sleep waits for the given duration or until stop is signalled.
func (s *Stage) sleep(d time.Duration) {
	select {
	case <-s.stopCh:
	case <-time.After(d):
	}
}
