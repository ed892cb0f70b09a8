package reasoner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
)

// ExternalTools answers reputation queries against third-party services.
// Both tools are read-only lookups; failures are reported through the
// result so the investigation continues on partial evidence.
type ExternalTools struct {
	vtBaseURL  string
	vtAPIKey   string
	cveBaseURL string
	cveAPIKey  string
	httpClient *http.Client
}

// NewExternalTools wires the VirusTotal and CVE lookup tools. API keys are
// read from the environment at startup.
func NewExternalTools(cfg config.ExternalConfig) *ExternalTools {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExternalTools{
		vtBaseURL:  cfg.VTBaseURL,
		vtAPIKey:   envOrEmpty(cfg.VTAPIKeyEnv),
		cveBaseURL: cfg.CVEBaseURL,
		cveAPIKey:  envOrEmpty(cfg.CVEAPIKeyEnv),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// VirusTotalIPReputation looks up the reputation record for an IP.
func (t *ExternalTools) VirusTotalIPReputation(ctx context.Context, ip string) *models.ToolResult {
	endpoint := t.vtBaseURL + "/ip_addresses/" + url.PathEscape(ip)
	headers := map[string]string{"accept": "application/json"}
	if t.vtAPIKey != "" {
		headers["x-apikey"] = t.vtAPIKey
	}
	return t.get(ctx, ToolVTReputation, endpoint, headers,
		map[string]any{"ip": ip}, "VirusTotal returned status=%d", "VirusTotal query failed.")
}

// CVESearch looks up CVE details by keyword or CVE ID.
func (t *ExternalTools) CVESearch(ctx context.Context, query string) *models.ToolResult {
	endpoint := t.cveBaseURL + "/search?" + url.Values{"q": {query}}.Encode()
	headers := map[string]string{}
	if t.cveAPIKey != "" {
		headers["X-Api-Key"] = t.cveAPIKey
	}
	return t.get(ctx, ToolCVESearch, endpoint, headers,
		map[string]any{"q": query}, "CVE search returned status=%d", "CVE query failed.")
}

func (t *ExternalTools) get(ctx context.Context, tool, endpoint string, headers map[string]string, query map[string]any, okFormat, failSummary string) *models.ToolResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &models.ToolResult{Tool: tool, Success: false, Query: query, Summary: failSummary, Error: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &models.ToolResult{Tool: tool, Success: false, Query: query, Summary: failSummary, Error: err.Error()}
	}
	defer resp.Body.Close()

	result := &models.ToolResult{
		Tool:    tool,
		Success: resp.StatusCode < 400,
		Query:   query,
		Summary: fmt.Sprintf(okFormat, resp.StatusCode),
		Data:    map[string]any{"status_code": resp.StatusCode, "result": decodeHTTPBody(resp)},
	}
	if !result.Success {
		result.Error = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return result
}
