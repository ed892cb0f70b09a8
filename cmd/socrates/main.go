// SOCRATES triage pipeline — streams security alerts out of the search
// index and runs them through aggregation and scoring, learned
// business-false-positive matching, and LLM-led investigation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/socrates-soc/socrates/pkg/aggregator"
	"github.com/socrates-soc/socrates/pkg/api"
	"github.com/socrates-soc/socrates/pkg/bizmatch"
	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/queue"
	"github.com/socrates-soc/socrates/pkg/reasoner"
	"github.com/socrates-soc/socrates/pkg/receiver"
	"github.com/socrates-soc/socrates/pkg/search"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: socrates [flags] <command>

Commands:
  run-all        Run every pipeline stage plus the ops server (default)
  run-receiver   Run the index-to-queue receiver only
  run-module1    Run the aggregation and scoring stage only
  run-module2    Run the business-false-positive matcher only
  run-module3    Run the LLM investigation stage only
  train-module2  Validate the module 2 model artifact
  consume        Drain and log a queue (default: final verdicts)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config",
		getEnv("SOCRATES_CONFIG", "./config/socrates.json"),
		"Path to the JSON configuration file")
	flag.Usage = usage
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "run-all"
	}

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting SOCRATES", "command", command, "config", *configPath)

	switch command {
	case "run-all":
		err = runAll(ctx, cfg)
	case "run-receiver":
		err = runReceiver(ctx, cfg)
	case "run-module1":
		err = runModule1(ctx, cfg)
	case "run-module2":
		err = runModule2(ctx, cfg)
	case "run-module3":
		err = runModule3(ctx, cfg)
	case "train-module2":
		err = trainModule2(cfg)
	case "consume":
		err = runConsume(ctx, cfg, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Fatal error", "command", command, "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete", "command", command)
}

// preflight verifies one backing dependency before a stage starts. A
// failure here means the config points at the wrong place; the process
// exits rather than retrying into the void.
func preflight(ctx context.Context, name string, check func(ctx context.Context) error) error {
	if err := check(ctx); err != nil {
		return fmt.Errorf("[config-connectivity-check] %s unreachable, check config: %w", name, err)
	}
	slog.Info("Connectivity check passed", "dependency", name)
	return nil
}

func redisPing(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}

func newRedisClient(ctx context.Context, url, name string) (*redis.Client, error) {
	client, err := queue.NewClient(url)
	if err != nil {
		return nil, err
	}
	if err := preflight(ctx, name, redisPing(client)); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newSearchClient(ctx context.Context, scheme, host string, port int, name string) (*search.Client, error) {
	client, err := search.NewClient(search.Address(scheme, host, port))
	if err != nil {
		return nil, err
	}
	if err := preflight(ctx, name, client.Ping); err != nil {
		return nil, err
	}
	return client, nil
}

func runReceiver(ctx context.Context, cfg *config.Config) error {
	es, err := newSearchClient(ctx, cfg.Receiver.Elastic.Scheme, cfg.Receiver.Elastic.Host,
		cfg.Receiver.Elastic.Port, "elasticsearch (receiver)")
	if err != nil {
		return err
	}
	client, err := newRedisClient(ctx, cfg.Receiver.Redis.URL, "redis (receiver)")
	if err != nil {
		return err
	}
	defer client.Close()

	output := queue.NewBuffer(client, cfg.Receiver.Redis.QueueKey, cfg.Receiver.Redis.MaxLen)
	return receiver.New(cfg.Receiver.Elastic, es, output).Run(ctx)
}

func runModule1(ctx context.Context, cfg *config.Config) error {
	client, err := newRedisClient(ctx, cfg.Module1.Queue.RedisURL, "redis (module1)")
	if err != nil {
		return err
	}
	defer client.Close()

	stage, err := buildModule1(cfg, client)
	if err != nil {
		return err
	}
	return stage.Run(ctx)
}

func buildModule1(cfg *config.Config, client *redis.Client) (*aggregator.Stage, error) {
	q := cfg.Module1.Queue
	input := queue.NewBuffer(client, q.InputKey, 0)
	output := queue.NewBuffer(client, q.OutputKey, q.OutputMaxLen)
	suppressed := queue.NewBuffer(client, q.SuppressedKey, q.SuppressedMaxLen)
	return aggregator.NewStage(cfg.Module1, client, input, output, suppressed)
}

func runModule2(ctx context.Context, cfg *config.Config) error {
	client, err := newRedisClient(ctx, cfg.Module2.Queue.RedisURL, "redis (module2)")
	if err != nil {
		return err
	}
	defer client.Close()

	stage, err := buildModule2(ctx, cfg, client)
	if err != nil {
		return err
	}
	return stage.Run(ctx)
}

func buildModule2(ctx context.Context, cfg *config.Config, client *redis.Client) (*bizmatch.Stage, error) {
	artifact, err := bizmatch.LoadArtifact(cfg.Module2.Model.ArtifactPath)
	if err != nil {
		return nil, err
	}

	var searcher bizmatch.Searcher
	if cfg.Module2.Elastic.IsEnabled() {
		es, err := newSearchClient(ctx, cfg.Module2.Elastic.Scheme, cfg.Module2.Elastic.Host,
			cfg.Module2.Elastic.Port, "elasticsearch (module2)")
		if err != nil {
			return nil, err
		}
		searcher = es
	}

	q := cfg.Module2.Queue
	input := queue.NewBuffer(client, q.InputKey, 0)
	output := queue.NewBuffer(client, q.OutputKey, q.OutputMaxLen)
	suppressed := queue.NewBuffer(client, q.SuppressedKey, q.SuppressedMaxLen)
	return bizmatch.NewStage(cfg.Module2, artifact, searcher, input, output, suppressed), nil
}

func runModule3(ctx context.Context, cfg *config.Config) error {
	client, err := newRedisClient(ctx, cfg.Module3.Queue.RedisURL, "redis (module3)")
	if err != nil {
		return err
	}
	defer client.Close()

	stage, err := buildModule3(ctx, cfg, client)
	if err != nil {
		return err
	}
	return stage.Run(ctx)
}

func buildModule3(ctx context.Context, cfg *config.Config, client *redis.Client) (*reasoner.Stage, error) {
	es, err := newSearchClient(ctx, cfg.Module3.Elastic.Scheme, cfg.Module3.Elastic.Host,
		cfg.Module3.Elastic.Port, "elasticsearch (module3)")
	if err != nil {
		return nil, err
	}
	llm, err := reasoner.NewLLMClient(cfg.Module3.LLM)
	if err != nil {
		return nil, err
	}

	orchestrator := reasoner.NewOrchestrator(
		reasoner.NewInternalTools(es, cfg.Module3.Elastic, cfg.Module3.CMDB),
		reasoner.NewExternalTools(cfg.Module3.External),
		cfg.Module3.Reasoner.ToolResultMaxItems,
	)
	investigator := reasoner.NewReasoner(llm, reasoner.LoadPrompts(cfg.Module3.LLM.PromptsDir),
		orchestrator, cfg.Module3.Reasoner)

	q := cfg.Module3.Queue
	input := queue.NewBuffer(client, q.InputKey, 0)
	output := queue.NewBuffer(client, q.OutputKey, q.OutputMaxLen)
	manualReview := queue.NewBuffer(client, q.ManualReviewKey, q.ManualMaxLen)
	return reasoner.NewStage(cfg.Module3, investigator, input, output, manualReview), nil
}

// runAll supervises every stage in one process. Stages share nothing but
// Redis, so one process or four is purely a deployment choice.
func runAll(ctx context.Context, cfg *config.Config) error {
	client, err := newRedisClient(ctx, cfg.Module1.Queue.RedisURL, "redis")
	if err != nil {
		return err
	}
	defer client.Close()

	receiverES, err := newSearchClient(ctx, cfg.Receiver.Elastic.Scheme, cfg.Receiver.Elastic.Host,
		cfg.Receiver.Elastic.Port, "elasticsearch")
	if err != nil {
		return err
	}

	m1, err := buildModule1(cfg, client)
	if err != nil {
		return err
	}
	m2, err := buildModule2(ctx, cfg, client)
	if err != nil {
		return err
	}
	m3, err := buildModule3(ctx, cfg, client)
	if err != nil {
		return err
	}

	rawOutput := queue.NewBuffer(client, cfg.Receiver.Redis.QueueKey, cfg.Receiver.Redis.MaxLen)
	rcv := receiver.New(cfg.Receiver.Elastic, receiverES, rawOutput)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rcv.Run(gctx) })
	g.Go(func() error { return m1.Run(gctx) })
	g.Go(func() error { return m2.Run(gctx) })
	g.Go(func() error { return m3.Run(gctx) })

	if cfg.Ops.IsEnabled() {
		ops := api.NewServer(cfg.Ops.ListenAddr,
			map[string]api.HealthCheck{
				"redis":         redisPing(client),
				"elasticsearch": receiverES.Ping,
			},
			pipelineQueues(cfg, client),
		)
		g.Go(func() error { return ops.Run(gctx) })
	}

	slog.Info("All stages started")
	return g.Wait()
}

// pipelineQueues lists every queue the pipeline touches, for the ops
// depth endpoint.
func pipelineQueues(cfg *config.Config, client *redis.Client) []*queue.Buffer {
	return []*queue.Buffer{
		queue.NewBuffer(client, cfg.Receiver.Redis.QueueKey, 0),
		queue.NewBuffer(client, cfg.Module1.Queue.OutputKey, 0),
		queue.NewBuffer(client, cfg.Module1.Queue.SuppressedKey, 0),
		queue.NewBuffer(client, cfg.Module2.Queue.OutputKey, 0),
		queue.NewBuffer(client, cfg.Module2.Queue.SuppressedKey, 0),
		queue.NewBuffer(client, cfg.Module3.Queue.OutputKey, 0),
		queue.NewBuffer(client, cfg.Module3.Queue.ManualReviewKey, 0),
	}
}

// runConsume drains one queue and logs every payload, for inspecting
// pipeline output during debugging. Consumption is destructive.
func runConsume(ctx context.Context, cfg *config.Config, key string) error {
	client, err := newRedisClient(ctx, cfg.Module3.Queue.RedisURL, "redis (consume)")
	if err != nil {
		return err
	}
	defer client.Close()

	if key == "" {
		key = cfg.Module3.Queue.OutputKey
	}
	return queue.NewConsumer(queue.NewBuffer(client, key, 0), 2*time.Second).Run(ctx)
}

// trainModule2 validates the configured model artifact. Training itself is
// an offline batch job; this command confirms the produced artifact is
// loadable before it is rolled out.
func trainModule2(cfg *config.Config) error {
	artifact, err := bizmatch.LoadArtifact(cfg.Module2.Model.ArtifactPath)
	if err != nil {
		return fmt.Errorf("model artifact failed validation: %w", err)
	}
	slog.Info("Model artifact is valid",
		"path", cfg.Module2.Model.ArtifactPath,
		"trained_at", artifact.TrainedAt,
		"trees", len(artifact.Model.Trees),
		"feature_dim", artifact.FeatureState.StructuralDim+artifact.FeatureState.SemanticDim+artifact.FeatureState.TemporalDim,
		"threshold", artifact.Threshold)
	return nil
}
