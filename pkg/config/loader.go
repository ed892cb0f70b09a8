package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
)

// Initialize loads, merges, and validates configuration from path and
// returns it ready for use. This is the primary entry point.
//
// Steps performed:
//  1. Read the JSON file
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse JSON into structs
//  4. Fill unset fields from built-in defaults
//  5. Validate the merged result
func Initialize(path string) (*Config, error) {
	log := slog.With("config_file", path)
	log.Info("Initializing configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"alerts_queue", cfg.Receiver.Redis.QueueKey,
		"aggregated_queue", cfg.Module1.Queue.OutputKey,
		"investigation_queue", cfg.Module2.Queue.OutputKey,
		"final_queue", cfg.Module3.Queue.OutputKey)

	return cfg, nil
}

// load reads and parses the file, then merges defaults into unset fields.
func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError(path, err)
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the JSON parser produce the clearer error message.
	data = ExpandEnv(data)

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}

	// File values win; defaults only fill fields the file left at zero.
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("failed to merge defaults: %w", err))
	}

	return &cfg, nil
}

// validate checks the merged configuration against the struct tags.
func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}
	sum := cfg.Module1.Scoring.WFreq + cfg.Module1.Scoring.WRule +
		cfg.Module1.Scoring.WCtx + cfg.Module1.Scoring.WRare
	if sum <= 0 {
		return fmt.Errorf("module1.scoring: weights sum to %v, must be positive", sum)
	}
	return nil
}
