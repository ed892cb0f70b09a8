package reasoner

// ToolSpec describes one callable tool for the planning prompt.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ArgsSchema  map[string]any `json:"args_schema"`
}

// Tool names. The five search_* tools share the query-DSL schema.
const (
	ToolSearchWAF     = "search_waf_logs"
	ToolSearchTianyan = "search_tianyan_alarm_logs"
	ToolSearchZhongzi = "search_zhongzi_logs"
	ToolSearchNginx   = "search_nginx_logs"
	ToolSearchHuorong = "search_huorong_logs"
	ToolCMDBAsset     = "get_cmdb_asset"
	ToolVTReputation  = "virustotal_ip_reputation"
	ToolCVESearch     = "cve_search"
)

// internalQueryTools are the log-search tools dispatched by index.
var internalQueryTools = map[string]bool{
	ToolSearchWAF:     true,
	ToolSearchTianyan: true,
	ToolSearchZhongzi: true,
	ToolSearchNginx:   true,
	ToolSearchHuorong: true,
}

// BuildToolSpecs returns the catalog surfaced to the planner.
func BuildToolSpecs() []ToolSpec {
	querySchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "object", "description": "Elasticsearch DSL query"},
			"size":  map[string]any{"type": "integer", "minimum": 1, "maximum": 200},
		},
		"required": []string{"query"},
	}
	ipSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ip": map[string]any{"type": "string"},
		},
		"required": []string{"ip"},
	}
	return []ToolSpec{
		{ToolSearchWAF, "Search WAF logs using Elasticsearch DSL.", querySchema},
		{ToolSearchTianyan, "Search Tianyan-Alarm logs using Elasticsearch DSL.", querySchema},
		{ToolSearchZhongzi, "Search Zhongzi logs using Elasticsearch DSL.", querySchema},
		{ToolSearchNginx, "Search Nginx logs using Elasticsearch DSL.", querySchema},
		{ToolSearchHuorong, "Search Huorong logs using Elasticsearch DSL.", querySchema},
		{ToolCMDBAsset, "Query CMDB asset info by IP.", ipSchema},
		{ToolVTReputation, "Query VirusTotal IP reputation.", ipSchema},
		{ToolCVESearch, "Query CVE details by keyword or CVE ID.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		}},
	}
}

// allowedToolNames is the planner's whitelist.
func allowedToolNames() map[string]bool {
	allowed := make(map[string]bool)
	for _, spec := range BuildToolSpecs() {
		allowed[spec.Name] = true
	}
	return allowed
}
