// Package search wraps the Elasticsearch client with the narrow surface
// the pipeline needs: body searches with decoded hits, and a ping.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/socrates-soc/socrates/pkg/models"
)

// Address renders the single-node address used across the config sections.
func Address(scheme, host string, port int) string {
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// Client is a thin wrapper over the official Elasticsearch client.
type Client struct {
	es *elasticsearch.Client
}

// NewClient connects to a single Elasticsearch node.
func NewClient(address string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{es: es}, nil
}

// Hit is one decoded search hit.
type Hit struct {
	ID     string
	Source models.RawAlert
	Sort   []any
}

// Result carries the decoded hits plus the reported total.
type Result struct {
	Total int64
	Hits  []Hit
}

// Search executes a body search against index and decodes the hits.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) (*Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("searching %s: %s", index, res.Status())
	}

	var envelope struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Source models.RawAlert `json:"_source"`
				Sort   []any           `json:"sort"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding search response from %s: %w", index, err)
	}

	out := &Result{Total: envelope.Hits.Total.Value}
	for _, h := range envelope.Hits.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Source: h.Source, Sort: h.Sort})
	}
	return out, nil
}

// Ping verifies the node is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}
