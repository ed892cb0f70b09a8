// Package reasoner implements the third pipeline stage: LLM-led alert
// investigation. The reasoner plans tool calls, executes them against
// internal log indexes and external reputation services, and folds the
// evidence into a verdict. Every LLM interaction degrades to a deterministic
// fallback, so a dead or rambling model never stalls the queue.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/metrics"
)

// jsonBlockRe grabs the outermost brace block from a completion that wraps
// its JSON in prose.
var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// Generator produces one completion for one prompt. Implementations must be
// safe for sequential reuse; the reasoner never calls concurrently.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// LLMClient is the production Generator over an OpenAI-compatible chat
// endpoint (vLLM, llama.cpp server, or the hosted API).
type LLMClient struct {
	llm         *openai.LLM
	maxTokens   int
	temperature float64
	topP        float64
}

// NewLLMClient connects to the configured chat endpoint. The API key is
// read from the environment so it never lands in a config file.
func NewLLMClient(cfg config.LLMConfig) (*LLMClient, error) {
	token := "unused"
	if cfg.APIKeyEnv != "" {
		if v := os.Getenv(cfg.APIKeyEnv); v != "" {
			token = v
		}
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating llm client for %s: %w", cfg.BaseURL, err)
	}
	return &LLMClient{
		llm:         llm,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}, nil
}

// GenerateText sends a single-turn prompt and returns the trimmed
// completion.
func (c *LLMClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
		llms.WithTopP(c.topP),
	)
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// generateJSON prompts for a JSON object and falls back to the given value
// when the model fails or the completion carries no parseable object.
func generateJSON(ctx context.Context, g Generator, prompt string, fallback map[string]any) map[string]any {
	text, err := g.GenerateText(ctx, prompt)
	if err != nil {
		metrics.LLMDegraded.Inc()
		return fallback
	}
	parsed := extractJSON(text)
	if parsed == nil {
		metrics.LLMDegraded.Inc()
		return fallback
	}
	return parsed
}

// extractJSON parses the completion as a JSON object, or failing that, the
// outermost brace block inside it.
func extractJSON(text string) map[string]any {
	text = strings.TrimSpace(text)

	var direct map[string]any
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct
	}

	block := jsonBlockRe.FindString(text)
	if block == "" {
		return nil
	}
	var embedded map[string]any
	if err := json.Unmarshal([]byte(block), &embedded); err != nil {
		return nil
	}
	return embedded
}
