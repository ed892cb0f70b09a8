package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
)

// toolExecutor runs one planned tool call.
type toolExecutor interface {
	Execute(ctx context.Context, call models.ToolCall) *models.ToolResult
}

// Reasoner drives one investigation: plan tool calls, execute and summarize
// each, then reason over the collected evidence to a verdict.
type Reasoner struct {
	gen           Generator
	prompts       PromptBundle
	executor      toolExecutor
	maxIterations int

	now func() time.Time
}

// NewReasoner wires the investigation loop.
func NewReasoner(gen Generator, prompts PromptBundle, executor toolExecutor, cfg config.ReasonerConfig) *Reasoner {
	maxIterations := cfg.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 8
	}
	return &Reasoner{
		gen:           gen,
		prompts:       prompts,
		executor:      executor,
		maxIterations: maxIterations,
		now:           time.Now,
	}
}

// Investigate runs the full loop for one alert. It always returns a
// complete verdict; a degraded LLM yields the INCONCLUSIVE fallback.
func (r *Reasoner) Investigate(ctx context.Context, alert models.InvestigationAlert) models.InvestigationVerdict {
	started := r.now().UTC()

	calls := r.planToolCalls(ctx, alert)
	if len(calls) == 0 {
		calls = fallbackToolCalls(alert)
	}
	if len(calls) > r.maxIterations {
		calls = calls[:r.maxIterations]
	}

	results := make([]*models.ToolResult, 0, len(calls))
	for _, call := range calls {
		result := r.executor.Execute(ctx, call)
		results = append(results, r.summarizeToolResult(ctx, alert, result))
	}

	verdict := r.finalReasoning(ctx, alert, results)
	finished := r.now().UTC()

	trace := make([]map[string]any, len(results))
	for i, result := range results {
		trace[i] = result.Compact()
	}
	verdict.ToolTrace = trace
	verdict.StartedAt = started.Format(time.RFC3339Nano)
	verdict.FinishedAt = finished.Format(time.RFC3339Nano)
	verdict.DurationMS = finished.Sub(started).Milliseconds()
	return verdict
}

// planToolCalls asks the model for a tool plan and keeps only whitelisted,
// well-formed entries. Any failure yields an empty plan.
func (r *Reasoner) planToolCalls(ctx context.Context, alert models.InvestigationAlert) []models.ToolCall {
	prompt := fmt.Sprintf("%s\n\n%s\n\nALERT:\n%s\n\nTOOLS:\n%s\n",
		r.prompts.System, r.prompts.Planning,
		mustJSON(alert.Brief()), mustJSON(BuildToolSpecs()))

	plan := generateJSON(ctx, r.gen, prompt, map[string]any{"tool_calls": []any{}})
	rawCalls, ok := plan["tool_calls"].([]any)
	if !ok {
		return nil
	}

	allowed := allowedToolNames()
	var calls []models.ToolCall
	for _, item := range rawCalls {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tool := strings.TrimSpace(models.Stringify(entry["tool"]))
		if !allowed[tool] {
			continue
		}
		args, ok := entry["args"].(map[string]any)
		if !ok {
			args = map[string]any{}
		}
		calls = append(calls, models.ToolCall{
			Tool:      tool,
			Args:      args,
			Rationale: models.Stringify(entry["rationale"]),
		})
	}
	return calls
}

// fallbackToolCalls is the deterministic plan used when the model produces
// none: asset context for the destination, reputation for the source, WAF
// context for the rule, and CVE enrichment when the rule names one.
func fallbackToolCalls(alert models.InvestigationAlert) []models.ToolCall {
	brief := alert.Brief()
	sip := strings.TrimSpace(models.Stringify(brief["sip"]))
	dip := strings.TrimSpace(models.Stringify(brief["dip"]))
	ruleName := strings.TrimSpace(models.Stringify(brief["rule_name"]))

	var calls []models.ToolCall
	if dip != "" {
		calls = append(calls, models.ToolCall{
			Tool: ToolCMDBAsset, Args: map[string]any{"ip": dip}, Rationale: "asset context",
		})
	}
	if sip != "" {
		calls = append(calls, models.ToolCall{
			Tool: ToolVTReputation, Args: map[string]any{"ip": sip}, Rationale: "source reputation",
		})
	}

	query := map[string]any{"match_all": map[string]any{}}
	if ruleName != "" {
		query = map[string]any{"bool": map[string]any{
			"must": []any{map[string]any{"match": map[string]any{"rule_name": ruleName}}},
		}}
	}
	calls = append(calls, models.ToolCall{
		Tool: ToolSearchWAF, Args: map[string]any{"query": query, "size": 30}, Rationale: "waf context",
	})

	if strings.Contains(strings.ToUpper(ruleName), "CVE-") {
		calls = append(calls, models.ToolCall{
			Tool: ToolCVESearch, Args: map[string]any{"query": ruleName}, Rationale: "cve enrichment",
		})
	}
	return calls
}

// summarizeToolResult asks the model to compress one tool result into a
// short summary plus typed signals. Failures keep the mechanical summary.
func (r *Reasoner) summarizeToolResult(ctx context.Context, alert models.InvestigationAlert, result *models.ToolResult) *models.ToolResult {
	prompt := fmt.Sprintf("%s\n\n%s\n\nALERT:\n%s\n\nTOOL_RESULT:\n%s\n",
		r.prompts.System, r.prompts.ToolSummary,
		mustJSON(alert.Brief()), mustJSON(result.Compact()))

	summary := generateJSON(ctx, r.gen, prompt, map[string]any{
		"summary": result.Summary,
		"signals": []any{},
	})
	if text := strings.TrimSpace(models.Stringify(summary["summary"])); text != "" {
		result.Summary = text
	}
	if signals, ok := summary["signals"].([]any); ok {
		if len(signals) > 20 {
			signals = signals[:20]
		}
		if result.Data == nil {
			result.Data = map[string]any{}
		}
		result.Data["signals"] = signals
	}
	return result
}

// finalReasoning asks for the verdict over the collected evidence and
// normalizes whatever comes back.
func (r *Reasoner) finalReasoning(ctx context.Context, alert models.InvestigationAlert, results []*models.ToolResult) models.InvestigationVerdict {
	summaries := make([]map[string]any, len(results))
	for i, result := range results {
		summaries[i] = result.Compact()
	}
	prompt := fmt.Sprintf("%s\n\n%s\n\nALERT:\n%s\n\nTOOL_SUMMARIES:\n%s\n",
		r.prompts.System, r.prompts.Final,
		mustJSON(alert.Brief()), mustJSON(summaries))

	data := generateJSON(ctx, r.gen, prompt, map[string]any{
		"verdict":            models.VerdictInconclusive,
		"severity":           models.RiskLevelMedium,
		"confidence":         0.4,
		"reasoning_summary":  "Insufficient evidence for a definitive decision.",
		"evidence":           []any{},
		"recommended_action": "manual_review",
	})
	return normalizeVerdict(data)
}

// normalizeVerdict coerces a model response into the closed verdict schema.
// Unknown enum values and malformed fields fall back to safe defaults.
func normalizeVerdict(data map[string]any) models.InvestigationVerdict {
	verdict := strings.ToUpper(strings.TrimSpace(models.Stringify(data["verdict"])))
	switch verdict {
	case models.VerdictMalicious, models.VerdictBenign, models.VerdictSuspicious, models.VerdictInconclusive:
	default:
		verdict = models.VerdictInconclusive
	}

	severity := strings.ToUpper(strings.TrimSpace(models.Stringify(data["severity"])))
	switch severity {
	case models.RiskLevelLow, models.RiskLevelMedium, models.RiskLevelHigh, models.RiskLevelCritical:
	default:
		severity = models.RiskLevelMedium
	}

	confidence, ok := models.ToFloat(data["confidence"])
	if !ok {
		confidence = 0.4
	}
	confidence = max(0.0, min(confidence, 1.0))

	evidence, ok := data["evidence"].([]any)
	if !ok {
		evidence = []any{}
	}
	if len(evidence) > 20 {
		evidence = evidence[:20]
	}

	reasoning := strings.TrimSpace(models.Stringify(data["reasoning_summary"]))
	if reasoning == "" {
		reasoning = "No reasoning summary provided."
	}
	action := strings.TrimSpace(models.Stringify(data["recommended_action"]))
	if action == "" {
		action = "manual_review"
	}

	return models.InvestigationVerdict{
		Verdict:           verdict,
		Severity:          severity,
		Confidence:        confidence,
		ReasoningSummary:  reasoning,
		Evidence:          evidence,
		RecommendedAction: action,
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
