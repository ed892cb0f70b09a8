package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newESServer serves canned responses with the product header the official
// client verifies on every response.
func newESServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "http://es.internal:9200", Address("http", "es.internal", 9200))
}

func TestSearchDecodesHits(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 2},
				"hits": [
					{"_id": "doc-1", "_source": {"rule_name": "sqli"}, "sort": [1700000000000, 4]},
					{"_id": "doc-2", "_source": {"rule_name": "xss"}, "sort": [1700000001000, 9]}
				]
			}
		}`))
	})

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	res, err := client.Search(context.Background(), "alerts-*", map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  200,
	})
	require.NoError(t, err)

	assert.Equal(t, "/alerts-*/_search", gotPath)
	assert.Equal(t, float64(200), gotBody["size"])

	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "doc-1", res.Hits[0].ID)
	assert.Equal(t, "sqli", res.Hits[0].Source["rule_name"])
	assert.Equal(t, []any{float64(1700000000000), float64(4)}, res.Hits[0].Sort)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "broken shard"}`))
	})

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "alerts-*", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts-*")
}

func TestPing(t *testing.T) {
	srv := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPingUnreachable(t *testing.T) {
	srv := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	assert.Error(t, client.Ping(context.Background()))
}
