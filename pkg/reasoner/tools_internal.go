package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/search"
)

// Searcher is the slice of the search client the internal tools need.
type Searcher interface {
	Search(ctx context.Context, index string, body map[string]any) (*search.Result, error)
}

// InternalTools answers queries against the organization's own systems:
// the five log indexes and the CMDB asset inventory.
type InternalTools struct {
	searcher    Searcher
	indexByTool map[string]string
	defaultSize int

	cmdbBaseURL string
	cmdbAPIKey  string
	httpClient  *http.Client
}

// NewInternalTools wires the log-search and CMDB tools.
func NewInternalTools(searcher Searcher, esCfg config.M3ElasticConfig, cmdbCfg config.CMDBConfig) *InternalTools {
	defaultSize := esCfg.DefaultSize
	if defaultSize <= 0 {
		defaultSize = 50
	}
	apiKey := ""
	if cmdbCfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cmdbCfg.APIKeyEnv)
	}
	timeout := time.Duration(cmdbCfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InternalTools{
		searcher: searcher,
		indexByTool: map[string]string{
			ToolSearchWAF:     esCfg.IndexWAF,
			ToolSearchTianyan: esCfg.IndexTianyanAlarm,
			ToolSearchZhongzi: esCfg.IndexZhongzi,
			ToolSearchNginx:   esCfg.IndexNginx,
			ToolSearchHuorong: esCfg.IndexHuorong,
		},
		defaultSize: defaultSize,
		cmdbBaseURL: cmdbCfg.BaseURL,
		cmdbAPIKey:  apiKey,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SearchLogs runs a DSL query against the index behind toolName. size 0
// means the configured default; anything else is clamped to [1,200].
func (t *InternalTools) SearchLogs(ctx context.Context, toolName string, query map[string]any, size int) *models.ToolResult {
	index := t.indexByTool[toolName]
	if size <= 0 {
		size = t.defaultSize
	}
	size = max(1, min(size, 200))
	body := map[string]any{"query": query, "size": size}

	result, err := t.searcher.Search(ctx, index, body)
	if err != nil {
		return &models.ToolResult{
			Tool:    toolName,
			Success: false,
			Query:   body,
			Summary: fmt.Sprintf("%s failed.", toolName),
			Error:   err.Error(),
		}
	}

	rows := make([]any, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Source != nil {
			rows = append(rows, map[string]any(hit.Source))
		}
	}
	return &models.ToolResult{
		Tool:    toolName,
		Success: true,
		Query:   body,
		Summary: fmt.Sprintf("%s returned %d rows from index=%s.", toolName, len(rows), index),
		Data:    map[string]any{"total": len(rows), "rows": rows},
	}
}

// GetCMDBAsset queries the asset inventory by IP. An unset base URL is a
// configuration error reported through the result, not a panic.
func (t *InternalTools) GetCMDBAsset(ctx context.Context, ip string) *models.ToolResult {
	if t.cmdbBaseURL == "" {
		return &models.ToolResult{
			Tool:    ToolCMDBAsset,
			Success: false,
			Summary: "CMDB base URL is not configured.",
			Error:   "cmdb_base_url_missing",
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cmdbBaseURL+"?"+url.Values{"ip": {ip}}.Encode(), nil)
	if err != nil {
		return &models.ToolResult{
			Tool:    ToolCMDBAsset,
			Success: false,
			Query:   map[string]any{"ip": ip},
			Summary: "CMDB query failed.",
			Error:   err.Error(),
		}
	}
	req.Header.Set("Accept", "application/json")
	if t.cmdbAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cmdbAPIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &models.ToolResult{
			Tool:    ToolCMDBAsset,
			Success: false,
			Query:   map[string]any{"ip": ip},
			Summary: "CMDB query failed.",
			Error:   err.Error(),
		}
	}
	defer resp.Body.Close()

	data := decodeHTTPBody(resp)
	result := &models.ToolResult{
		Tool:    ToolCMDBAsset,
		Success: resp.StatusCode < 400,
		Query:   map[string]any{"ip": ip},
		Summary: fmt.Sprintf("CMDB query returned status=%d", resp.StatusCode),
		Data:    map[string]any{"status_code": resp.StatusCode, "result": data},
	}
	if !result.Success {
		result.Error = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return result
}

// decodeHTTPBody parses a JSON response body, or carries a bounded raw-text
// excerpt for anything else.
func decodeHTTPBody(resp *http.Response) map[string]any {
	content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return map[string]any{"raw_text": ""}
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(content, &parsed); err == nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			return map[string]any{"data": parsed}
		}
	}
	text := string(content)
	if len(text) > 4000 {
		text = text[:4000]
	}
	return map[string]any{"raw_text": text}
}
