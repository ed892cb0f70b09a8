package bizmatch

import (
	"context"
	"log/slog"

	"github.com/socrates-soc/socrates/pkg/search"
)

// Searcher is the slice of the search client the fetcher needs.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*search.Result, error)
}

// Fetcher resolves the reference IDs carried on an aggregated alert back to
// the raw instances behind them.
type Fetcher struct {
	searcher  Searcher
	index     string
	batchSize int
	logger    *slog.Logger
}

// NewFetcher creates a reference fetcher over the given index.
func NewFetcher(searcher Searcher, index string, batchSize int) *Fetcher {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Fetcher{
		searcher:  searcher,
		index:     index,
		batchSize: batchSize,
		logger:    slog.With("component", "bizmatch-fetcher"),
	}
}

// FetchByReferenceIDs retrieves raw instances for the given IDs in chunks.
// A failed chunk is logged and skipped: a partial instance set still lets
// the matcher score, while failing the whole alert would stall the queue.
func (f *Fetcher) FetchByReferenceIDs(ctx context.Context, ids []string) []search.Hit {
	var hits []search.Hit
	for start := 0; start < len(ids); start += f.batchSize {
		end := min(start+f.batchSize, len(ids))
		batch := ids[start:end]

		result, err := f.searcher.Search(ctx, f.index, referenceQuery(batch))
		if err != nil {
			f.logger.Warn("reference chunk fetch failed, skipping",
				"index", f.index, "chunk_size", len(batch), "error", err.Error())
			continue
		}
		hits = append(hits, result.Hits...)
	}
	return hits
}

// referenceQuery matches documents whose stored event ID or document ID is
// in the batch. Either may hold the reference depending on the log source.
func referenceQuery(batch []string) map[string]any {
	ids := make([]any, len(batch))
	for i, id := range batch {
		ids[i] = id
	}
	return map[string]any{
		"size": len(batch),
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"terms": map[string]any{"event.id": ids}},
					map[string]any{"terms": map[string]any{"id": ids}},
					map[string]any{"terms": map[string]any{"alert_id": ids}},
					map[string]any{"ids": map[string]any{"values": ids}},
				},
				"minimum_should_match": 1,
			},
		},
	}
}
