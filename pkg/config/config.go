// Package config loads and validates the unified SOCRATES configuration:
// a single JSON document with receiver, module1, module2, module3, and ops
// sections. Configuration is immutable for the lifetime of a process.
package config

import "time"

// Config is the root of the unified JSON document.
type Config struct {
	Receiver ReceiverConfig `json:"receiver"`
	Module1  Module1Config  `json:"module1"`
	Module2  Module2Config  `json:"module2"`
	Module3  Module3Config  `json:"module3"`
	Ops      OpsConfig      `json:"ops"`
}

// ReceiverConfig drives the forward-only index stream.
type ReceiverConfig struct {
	Elastic ReceiverElasticConfig `json:"elastic"`
	Redis   ReceiverRedisConfig   `json:"redis"`
}

// ReceiverElasticConfig describes the source index and cursor behavior.
type ReceiverElasticConfig struct {
	Host          string  `json:"host" validate:"required"`
	Port          int     `json:"port" validate:"min=1,max=65535"`
	Scheme        string  `json:"scheme" validate:"oneof=http https"`
	Index         string  `json:"index" validate:"required"`
	SortField     string  `json:"sort_field" validate:"required"`
	BatchSize     int     `json:"batch_size" validate:"min=1"`
	PollIntervalS float64 `json:"poll_interval_s" validate:"gt=0"`
	StartTime     string  `json:"start_time"`
}

// ReceiverRedisConfig names the queue raw alerts are published to.
type ReceiverRedisConfig struct {
	URL      string `json:"url" validate:"required"`
	QueueKey string `json:"queue_key" validate:"required"`
	MaxLen   int64  `json:"maxlen" validate:"min=0"`
}

// Module1Config covers aggregation, scoring, assets, and history.
type Module1Config struct {
	Queue       M1QueueConfig     `json:"queue"`
	Aggregation AggregationConfig `json:"aggregation"`
	Scoring     ScoringConfig     `json:"scoring"`
	Asset       AssetConfig       `json:"asset"`
	History     HistoryConfig     `json:"history"`
}

// M1QueueConfig names module 1 input and output queues.
type M1QueueConfig struct {
	RedisURL         string `json:"redis_url" validate:"required"`
	InputKey         string `json:"input_key" validate:"required"`
	OutputKey        string `json:"output_key" validate:"required"`
	SuppressedKey    string `json:"suppressed_key" validate:"required"`
	OutputMaxLen     int64  `json:"output_maxlen" validate:"min=0"`
	SuppressedMaxLen int64  `json:"suppressed_maxlen" validate:"min=0"`
}

// AggregationConfig controls bucket lifecycle.
type AggregationConfig struct {
	WindowS        int     `json:"window_s" validate:"min=1"`
	FlushIntervalS float64 `json:"flush_interval_s" validate:"gt=0"`
	PopTimeoutS    int     `json:"pop_timeout_s" validate:"min=1"`
	MaxRefIDs      int     `json:"max_ref_ids" validate:"min=1"`
	HistoryDays    int     `json:"history_days" validate:"min=1"`
}

// ScoringConfig holds the composite weights and routing threshold.
type ScoringConfig struct {
	Threshold float64 `json:"threshold" validate:"min=0,max=100"`
	WFreq     float64 `json:"w_freq" validate:"min=0,max=1"`
	WRule     float64 `json:"w_rule" validate:"min=0,max=1"`
	WCtx      float64 `json:"w_ctx" validate:"min=0,max=1"`
	WRare     float64 `json:"w_rare" validate:"min=0,max=1"`
}

// AssetConfig points at the static asset catalog file.
type AssetConfig struct {
	TablePath string `json:"table_path"`
}

// HistoryConfig names the rolling per-day history keys.
type HistoryConfig struct {
	KeyPrefix string `json:"key_prefix" validate:"required"`
}

// Module2Config covers the business-false-positive matcher.
type Module2Config struct {
	Queue   M2QueueConfig   `json:"queue"`
	Elastic M2ElasticConfig `json:"elastic"`
	Model   ModelConfig     `json:"model"`
}

// M2QueueConfig names module 2 input and output queues.
type M2QueueConfig struct {
	RedisURL         string `json:"redis_url" validate:"required"`
	InputKey         string `json:"input_key" validate:"required"`
	OutputKey        string `json:"output_key" validate:"required"`
	SuppressedKey    string `json:"suppressed_key" validate:"required"`
	OutputMaxLen     int64  `json:"output_maxlen" validate:"min=0"`
	SuppressedMaxLen int64  `json:"suppressed_maxlen" validate:"min=0"`
	PopTimeoutS      int    `json:"pop_timeout_s" validate:"min=1"`
}

// M2ElasticConfig drives the reference-ID batch fetch. Enabled defaults to
// true; an explicit false disables raw-instance recovery entirely.
type M2ElasticConfig struct {
	Enabled         *bool  `json:"enabled"`
	Host            string `json:"host" validate:"required"`
	Port            int    `json:"port" validate:"min=1,max=65535"`
	Scheme          string `json:"scheme" validate:"oneof=http https"`
	Index           string `json:"index" validate:"required"`
	RequestTimeoutS int    `json:"request_timeout_s" validate:"min=1"`
	BatchSize       int    `json:"batch_size" validate:"min=1"`
}

// IsEnabled reports whether the reference fetcher should run.
func (c M2ElasticConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ModelConfig locates the trained artifact and decision parameters.
type ModelConfig struct {
	ArtifactPath      string  `json:"artifact_path" validate:"required"`
	DecisionThreshold float64 `json:"decision_threshold" validate:"min=0,max=1"`
	MinInstanceCount  int     `json:"min_instance_count" validate:"min=1"`
}

// Module3Config covers the investigation reasoner and its tools.
type Module3Config struct {
	Queue    M3QueueConfig   `json:"queue"`
	LLM      LLMConfig       `json:"llm"`
	Elastic  M3ElasticConfig `json:"elastic"`
	CMDB     CMDBConfig      `json:"cmdb"`
	External ExternalConfig  `json:"external"`
	Reasoner ReasonerConfig  `json:"reasoner"`
}

// M3QueueConfig names module 3 input and output queues.
type M3QueueConfig struct {
	RedisURL        string `json:"redis_url" validate:"required"`
	InputKey        string `json:"input_key" validate:"required"`
	OutputKey       string `json:"output_key" validate:"required"`
	ManualReviewKey string `json:"manual_review_key" validate:"required"`
	OutputMaxLen    int64  `json:"output_maxlen" validate:"min=0"`
	ManualMaxLen    int64  `json:"manual_review_maxlen" validate:"min=0"`
	PopTimeoutS     int    `json:"pop_timeout_s" validate:"min=1"`
}

// LLMConfig points at an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL         string  `json:"base_url" validate:"required"`
	Model           string  `json:"model" validate:"required"`
	APIKeyEnv       string  `json:"api_key_env"`
	PromptsDir      string  `json:"prompts_dir"`
	MaxTokens       int     `json:"max_tokens" validate:"min=1"`
	Temperature     float64 `json:"temperature" validate:"min=0"`
	TopP            float64 `json:"top_p" validate:"gt=0,max=1"`
	RequestTimeoutS int     `json:"request_timeout_s" validate:"min=1"`
}

// M3ElasticConfig names the five searchable log indexes.
type M3ElasticConfig struct {
	Host              string `json:"host" validate:"required"`
	Port              int    `json:"port" validate:"min=1,max=65535"`
	Scheme            string `json:"scheme" validate:"oneof=http https"`
	TimeoutS          int    `json:"timeout_s" validate:"min=1"`
	DefaultSize       int    `json:"default_size" validate:"min=1,max=200"`
	IndexWAF          string `json:"index_waf" validate:"required"`
	IndexTianyanAlarm string `json:"index_tianyan_alarm" validate:"required"`
	IndexZhongzi      string `json:"index_zhongzi" validate:"required"`
	IndexNginx        string `json:"index_nginx" validate:"required"`
	IndexHuorong      string `json:"index_huorong" validate:"required"`
}

// CMDBConfig points at the internal asset-inventory HTTP endpoint.
// An empty base URL disables the tool (it reports a configuration error).
type CMDBConfig struct {
	BaseURL   string `json:"base_url"`
	APIKeyEnv string `json:"api_key_env"`
	TimeoutS  int    `json:"timeout_s" validate:"min=1"`
}

// ExternalConfig points at external reputation services.
type ExternalConfig struct {
	VTBaseURL    string `json:"vt_base_url" validate:"required"`
	VTAPIKeyEnv  string `json:"vt_api_key_env"`
	CVEBaseURL   string `json:"cve_base_url" validate:"required"`
	CVEAPIKeyEnv string `json:"cve_api_key_env"`
	TimeoutS     int    `json:"timeout_s" validate:"min=1"`
}

// ReasonerConfig bounds the tool-use loop.
type ReasonerConfig struct {
	MaxToolIterations               int     `json:"max_tool_iterations" validate:"min=1"`
	ToolResultMaxItems              int     `json:"tool_result_max_items" validate:"min=1"`
	ManualReviewConfidenceThreshold float64 `json:"manual_review_confidence_threshold" validate:"min=0,max=1"`
}

// OpsConfig controls the operational HTTP server (health, queues, metrics).
type OpsConfig struct {
	Enabled    *bool  `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// IsEnabled reports whether the ops server should be started.
func (c OpsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Seconds converts a numeric seconds field to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
