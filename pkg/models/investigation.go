package models

// Verdict values the reasoner may assign.
const (
	VerdictMalicious    = "MALICIOUS"
	VerdictBenign       = "BENIGN"
	VerdictSuspicious   = "SUSPICIOUS"
	VerdictInconclusive = "INCONCLUSIVE"
)

// briefFields is the whitelisted subset of payload keys surfaced to the LLM.
var briefFields = []string{
	"sip",
	"dip",
	"proto",
	"rule_name",
	"log_type",
	"uri_template",
	"reference_uuids",
	"risk_scores",
	"module2_business_match",
}

// InvestigationAlert wraps a queue payload entering the reasoner.
type InvestigationAlert struct {
	Payload RawAlert
}

// Brief returns the whitelisted projection of the payload used in prompts.
func (a InvestigationAlert) Brief() map[string]any {
	brief := make(map[string]any, len(briefFields))
	for _, key := range briefFields {
		if v, ok := a.Payload[key]; ok {
			brief[key] = v
		}
	}
	return brief
}

// ToolCall is one planned tool invocation.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Rationale string         `json:"rationale"`
}

// ToolResult is the uniform outcome of a tool invocation. Failures are
// carried in Error rather than raised.
type ToolResult struct {
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Query   map[string]any `json:"query"`
	Summary string         `json:"summary"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error,omitempty"`
}

// Compact renders the result for prompts and the tool trace.
func (r *ToolResult) Compact() map[string]any {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	var errField any
	if r.Error != "" {
		errField = r.Error
	}
	return map[string]any{
		"tool":    r.Tool,
		"success": r.Success,
		"query":   r.Query,
		"summary": r.Summary,
		"error":   errField,
		"data":    data,
	}
}

// InvestigationVerdict is the reasoner's final classification. All fields
// are always present; defaults are applied when the LLM omits them.
type InvestigationVerdict struct {
	Verdict           string
	Severity          string
	Confidence        float64
	ReasoningSummary  string
	Evidence          []any
	ToolTrace         []map[string]any
	RecommendedAction string
	StartedAt         string
	FinishedAt        string
	DurationMS        int64
}

// ToPayload renders the verdict for queue annotation.
func (v InvestigationVerdict) ToPayload() map[string]any {
	evidence := v.Evidence
	if evidence == nil {
		evidence = []any{}
	}
	trace := v.ToolTrace
	if trace == nil {
		trace = []map[string]any{}
	}
	return map[string]any{
		"verdict":            v.Verdict,
		"severity":           v.Severity,
		"confidence":         Round4(v.Confidence),
		"reasoning_summary":  v.ReasoningSummary,
		"evidence":           evidence,
		"tool_trace":         trace,
		"recommended_action": v.RecommendedAction,
		"timestamps": map[string]any{
			"started_at":  v.StartedAt,
			"finished_at": v.FinishedAt,
			"duration_ms": v.DurationMS,
		},
	}
}
