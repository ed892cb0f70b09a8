package bizmatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/search"
)

type fakeSearcher struct {
	bodies  []map[string]any
	results []*search.Result
	errs    []error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, body map[string]any) (*search.Result, error) {
	f.bodies = append(f.bodies, body)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &search.Result{}, nil
}

func hitFor(id string) search.Hit {
	return search.Hit{ID: id, Source: models.RawAlert{"id": id}}
}

func TestFetchChunksByBatchSize(t *testing.T) {
	searcher := &fakeSearcher{
		results: []*search.Result{
			{Hits: []search.Hit{hitFor("a"), hitFor("b")}},
			{Hits: []search.Hit{hitFor("c"), hitFor("d")}},
			{Hits: []search.Hit{hitFor("e")}},
		},
	}
	fetcher := NewFetcher(searcher, "waf-*", 2)

	hits := fetcher.FetchByReferenceIDs(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.Len(t, searcher.bodies, 3)
	assert.Len(t, hits, 5)
	assert.Equal(t, 2, searcher.bodies[0]["size"])
	assert.Equal(t, 1, searcher.bodies[2]["size"])
}

func TestFetchQueryMatchesAnyIDField(t *testing.T) {
	searcher := &fakeSearcher{}
	fetcher := NewFetcher(searcher, "waf-*", 10)

	fetcher.FetchByReferenceIDs(context.Background(), []string{"a", "b"})

	require.Len(t, searcher.bodies, 1)
	boolQuery := searcher.bodies[0]["query"].(map[string]any)["bool"].(map[string]any)
	assert.Equal(t, 1, boolQuery["minimum_should_match"])

	should := boolQuery["should"].([]any)
	require.Len(t, should, 4)
	assert.Equal(t, []any{"a", "b"}, should[0].(map[string]any)["terms"].(map[string]any)["event.id"])
	assert.Equal(t, []any{"a", "b"}, should[3].(map[string]any)["ids"].(map[string]any)["values"])
}

func TestFetchSkipsFailedChunks(t *testing.T) {
	searcher := &fakeSearcher{
		results: []*search.Result{
			{Hits: []search.Hit{hitFor("a")}},
			nil,
			{Hits: []search.Hit{hitFor("c")}},
		},
		errs: []error{nil, errors.New("shard failure"), nil},
	}
	fetcher := NewFetcher(searcher, "waf-*", 1)

	hits := fetcher.FetchByReferenceIDs(context.Background(), []string{"a", "b", "c"})

	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
}

func TestFetchNoIDsMakesNoRequests(t *testing.T) {
	searcher := &fakeSearcher{}
	fetcher := NewFetcher(searcher, "waf-*", 10)

	assert.Empty(t, fetcher.FetchByReferenceIDs(context.Background(), nil))
	assert.Zero(t, searcher.calls)
}
