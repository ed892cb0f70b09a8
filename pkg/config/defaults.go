package config

// Default queue keys connecting the four stages.
const (
	DefaultAlertsKey             = "socrates:alerts"
	DefaultAggregatedKey         = "socrates:alerts:aggregated"
	DefaultSuppressedKey         = "socrates:alerts:suppressed"
	DefaultInvestigationKey      = "socrates:alerts:investigation"
	DefaultBusinessSuppressedKey = "socrates:alerts:business_suppressed"
	DefaultFinalKey              = "socrates:alerts:final"
	DefaultManualReviewKey       = "socrates:alerts:manual_review"
)

// DefaultConfig returns the built-in configuration. Values a config file
// leaves unset are filled from here before validation.
func DefaultConfig() *Config {
	return &Config{
		Receiver: ReceiverConfig{
			Elastic: ReceiverElasticConfig{
				Host:          "localhost",
				Port:          9200,
				Scheme:        "http",
				Index:         "alerts-*",
				SortField:     "@timestamp",
				BatchSize:     200,
				PollIntervalS: 2.0,
			},
			Redis: ReceiverRedisConfig{
				URL:      "redis://localhost:6379/0",
				QueueKey: DefaultAlertsKey,
			},
		},
		Module1: Module1Config{
			Queue: M1QueueConfig{
				RedisURL:      "redis://localhost:6379/0",
				InputKey:      DefaultAlertsKey,
				OutputKey:     DefaultAggregatedKey,
				SuppressedKey: DefaultSuppressedKey,
			},
			Aggregation: AggregationConfig{
				WindowS:        300,
				FlushIntervalS: 1.0,
				PopTimeoutS:    1,
				MaxRefIDs:      200,
				HistoryDays:    14,
			},
			Scoring: ScoringConfig{
				Threshold: 50.0,
				WFreq:     0.35,
				WRule:     0.25,
				WCtx:      0.20,
				WRare:     0.20,
			},
			Asset: AssetConfig{
				TablePath: "config/assets_static.json",
			},
			History: HistoryConfig{
				KeyPrefix: "socrates:aggr:hist",
			},
		},
		Module2: Module2Config{
			Queue: M2QueueConfig{
				RedisURL:      "redis://localhost:6379/0",
				InputKey:      DefaultAggregatedKey,
				OutputKey:     DefaultInvestigationKey,
				SuppressedKey: DefaultBusinessSuppressedKey,
				PopTimeoutS:   1,
			},
			Elastic: M2ElasticConfig{
				Host:            "localhost",
				Port:            9200,
				Scheme:          "http",
				Index:           "alerts-*",
				RequestTimeoutS: 5,
				BatchSize:       200,
			},
			Model: ModelConfig{
				ArtifactPath:      "models/business_self_learning_model.json",
				DecisionThreshold: 0.72,
				MinInstanceCount:  2,
			},
		},
		Module3: Module3Config{
			Queue: M3QueueConfig{
				RedisURL:        "redis://localhost:6379/0",
				InputKey:        DefaultInvestigationKey,
				OutputKey:       DefaultFinalKey,
				ManualReviewKey: DefaultManualReviewKey,
				PopTimeoutS:     1,
			},
			LLM: LLMConfig{
				BaseURL:         "http://localhost:8000/v1",
				Model:           "qwen3-32b",
				APIKeyEnv:       "SOCRATES_LLM_API_KEY",
				PromptsDir:      "prompts/investigation",
				MaxTokens:       1200,
				Temperature:     0.1,
				TopP:            0.9,
				RequestTimeoutS: 120,
			},
			Elastic: M3ElasticConfig{
				Host:              "localhost",
				Port:              9200,
				Scheme:            "http",
				TimeoutS:          10,
				DefaultSize:       50,
				IndexWAF:          "waf-*",
				IndexTianyanAlarm: "tianyan-alarm-*",
				IndexZhongzi:      "zhongzi-*",
				IndexNginx:        "nginx-*",
				IndexHuorong:      "huorong-*",
			},
			CMDB: CMDBConfig{
				APIKeyEnv: "SOCRATES_CMDB_API_KEY",
				TimeoutS:  8,
			},
			External: ExternalConfig{
				VTBaseURL:    "https://www.virustotal.com/api/v3",
				VTAPIKeyEnv:  "SOCRATES_VT_API_KEY",
				CVEBaseURL:   "https://api.cvesearch.com",
				CVEAPIKeyEnv: "SOCRATES_CVE_API_KEY",
				TimeoutS:     10,
			},
			Reasoner: ReasonerConfig{
				MaxToolIterations:               8,
				ToolResultMaxItems:              30,
				ManualReviewConfidenceThreshold: 0.55,
			},
		},
		Ops: OpsConfig{
			ListenAddr: ":8090",
		},
	}
}
