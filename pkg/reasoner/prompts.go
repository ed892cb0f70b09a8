package reasoner

import (
	"os"
	"path/filepath"
)

// PromptBundle holds the four prompts the reasoner composes. Each can be
// overridden by a markdown file in the prompts directory; the compiled
// defaults keep the stage functional with no files at all.
type PromptBundle struct {
	System      string
	Planning    string
	ToolSummary string
	Final       string
}

const (
	defaultSystemPrompt = "You are a SOC investigation assistant. Use only provided tools and evidence. " +
		"Avoid speculation. Always output valid JSON when asked."

	defaultPlanningPrompt = "Given ALERT and available TOOLS, produce a JSON object: " +
		`{"tool_calls":[{"tool":"tool_name","args":{},"rationale":"..."}]}`

	defaultToolSummaryPrompt = "Summarize tool output into concise evidence JSON: " +
		`{"summary":"...","signals":[{"type":"...","value":"...","confidence":0.0}]}`

	defaultFinalPrompt = "Produce final verdict JSON: " +
		`{"verdict":"MALICIOUS|BENIGN|SUSPICIOUS|INCONCLUSIVE","severity":"LOW|MEDIUM|HIGH|CRITICAL",` +
		`"confidence":0.0,"reasoning_summary":"...","evidence":[...],"recommended_action":"..."}`
)

// LoadPrompts reads prompt overrides from dir, falling back to the defaults
// file by file.
func LoadPrompts(dir string) PromptBundle {
	return PromptBundle{
		System:      readOrDefault(dir, "system_prompt.md", defaultSystemPrompt),
		Planning:    readOrDefault(dir, "planning_prompt.md", defaultPlanningPrompt),
		ToolSummary: readOrDefault(dir, "tool_summary_prompt.md", defaultToolSummaryPrompt),
		Final:       readOrDefault(dir, "final_prompt.md", defaultFinalPrompt),
	}
}

func readOrDefault(dir, filename, def string) string {
	if dir == "" {
		return def
	}
	content, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return def
	}
	return string(content)
}
