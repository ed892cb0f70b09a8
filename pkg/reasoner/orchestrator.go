package reasoner

import (
	"context"
	"fmt"
	"strings"

	"github.com/socrates-soc/socrates/pkg/metrics"
	"github.com/socrates-soc/socrates/pkg/models"
)

// Orchestrator dispatches planned tool calls and bounds result sizes. Bad
// arguments and unknown tools come back as failed results, never errors:
// the reasoner treats them as evidence of their own.
type Orchestrator struct {
	internal *InternalTools
	external *ExternalTools
	maxRows  int
}

// NewOrchestrator creates a dispatcher over the wired tools.
func NewOrchestrator(internal *InternalTools, external *ExternalTools, maxRows int) *Orchestrator {
	if maxRows <= 0 {
		maxRows = 30
	}
	return &Orchestrator{internal: internal, external: external, maxRows: maxRows}
}

// Execute runs one tool call and returns its (possibly failed) result.
func (o *Orchestrator) Execute(ctx context.Context, call models.ToolCall) *models.ToolResult {
	result := o.dispatch(ctx, call)
	outcome := "ok"
	if !result.Success {
		outcome = "failed"
	}
	metrics.ToolInvocations.WithLabelValues(call.Tool, outcome).Inc()
	return result
}

func (o *Orchestrator) dispatch(ctx context.Context, call models.ToolCall) *models.ToolResult {
	switch {
	case internalQueryTools[call.Tool]:
		query, ok := call.Args["query"].(map[string]any)
		if !ok {
			query = map[string]any{"match_all": map[string]any{}}
		}
		size := 0
		if f, ok := models.ToFloat(call.Args["size"]); ok {
			size = int(f)
		}
		return o.trimRows(o.internal.SearchLogs(ctx, call.Tool, query, size))

	case call.Tool == ToolCMDBAsset:
		ip := argString(call.Args, "ip")
		if ip == "" {
			return missingArg(call.Tool, "ip", "missing_ip")
		}
		return o.internal.GetCMDBAsset(ctx, ip)

	case call.Tool == ToolVTReputation:
		ip := argString(call.Args, "ip")
		if ip == "" {
			return missingArg(call.Tool, "ip", "missing_ip")
		}
		return o.external.VirusTotalIPReputation(ctx, ip)

	case call.Tool == ToolCVESearch:
		query := argString(call.Args, "query")
		if query == "" {
			return missingArg(call.Tool, "query", "missing_query")
		}
		return o.external.CVESearch(ctx, query)

	default:
		return &models.ToolResult{
			Tool:    call.Tool,
			Success: false,
			Summary: fmt.Sprintf("Unknown tool: %s", call.Tool),
			Error:   "unknown_tool",
		}
	}
}

// trimRows caps the row payload handed to the LLM, recording the original
// count so the model knows evidence was cut.
func (o *Orchestrator) trimRows(result *models.ToolResult) *models.ToolResult {
	rows, ok := result.Data["rows"].([]any)
	if !ok || len(rows) <= o.maxRows {
		return result
	}
	result.Data["rows"] = rows[:o.maxRows]
	result.Data["trimmed"] = true
	result.Data["trimmed_from"] = len(rows)
	return result
}

func argString(args map[string]any, key string) string {
	return strings.TrimSpace(models.Stringify(args[key]))
}

func missingArg(tool, arg, code string) *models.ToolResult {
	return &models.ToolResult{
		Tool:    tool,
		Success: false,
		Summary: fmt.Sprintf("Missing %s argument.", arg),
		Error:   code,
	}
}
