package bizmatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/metrics"
	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/queue"
)

const (
	stageName   = "module2"
	moduleName  = "module_business_logic_self_learning"
	annotateKey = "module2_business_match"
)

// Stage is the business-false-positive worker: pop aggregated alert →
// recover raw instances → score with the trained ensemble → annotate and
// route. Matches go to the suppressed queue, everything else moves on to
// investigation.
type Stage struct {
	matcher *Matcher
	fetcher *Fetcher

	output     *queue.Buffer
	suppressed *queue.Buffer
	runner     *queue.Runner
}

// NewStage wires the module 2 worker around a loaded artifact. searcher may
// be nil when raw-instance recovery is disabled; the matcher then scores
// the synthesized fallback instance only.
func NewStage(cfg config.Module2Config, artifact *Artifact, searcher Searcher, input, output, suppressed *queue.Buffer) *Stage {
	s := &Stage{
		matcher:    NewMatcher(artifact, cfg.Model.DecisionThreshold, cfg.Model.MinInstanceCount),
		output:     output,
		suppressed: suppressed,
	}
	if searcher != nil && cfg.Elastic.IsEnabled() {
		s.fetcher = NewFetcher(searcher, cfg.Elastic.Index, cfg.Elastic.BatchSize)
	}
	s.runner = queue.NewRunner(queue.RunnerOptions{
		Name:       stageName,
		Input:      input,
		PopTimeout: time.Duration(cfg.Queue.PopTimeoutS) * time.Second,
		Handle:     s.handle,
	})
	return s
}

// Start begins the stage loop in a goroutine.
func (s *Stage) Start(ctx context.Context) {
	s.runner.Start(ctx)
}

// Stop stops the loop and waits for it to finish.
func (s *Stage) Stop() {
	s.runner.Stop()
}

// Run blocks until ctx is cancelled, then stops the loop.
func (s *Stage) Run(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *Stage) handle(ctx context.Context, payload models.RawAlert) error {
	metrics.StageConsumed.WithLabelValues(stageName).Inc()
	aggregated := models.AggregatedAlertFromPayload(payload)

	instances, fetched := s.instances(ctx, aggregated)
	decision := s.matcher.Evaluate(instances, payload)

	payload[annotateKey] = decision.ToPayload(fetched)
	payload["module"] = moduleName
	payload["version"] = 1

	dest := s.output
	if decision.IsBusinessFalsePositive {
		dest = s.suppressed
		slog.Info("Aggregated alert matched learned business pattern",
			"stage", stageName, "rule_name", aggregated.RuleName,
			"aggregate_score", models.Round4(decision.AggregateScore),
			"instances", len(decision.InstanceScores))
	}
	if err := dest.Push(ctx, payload); err != nil {
		return err
	}
	metrics.StageRouted.WithLabelValues(stageName, dest.Key()).Inc()
	return nil
}

// instances recovers raw documents for the alert's reference IDs. When
// nothing can be recovered the aggregated fields themselves stand in as a
// single instance, so the matcher always has something to score.
func (s *Stage) instances(ctx context.Context, aggregated models.AggregatedAlert) ([]models.RawAlert, int) {
	if s.fetcher != nil && len(aggregated.ReferenceUUIDs) > 0 {
		hits := s.fetcher.FetchByReferenceIDs(ctx, aggregated.ReferenceUUIDs)
		if len(hits) > 0 {
			instances := make([]models.RawAlert, len(hits))
			for i, hit := range hits {
				instances[i] = hit.Source
			}
			return instances, len(hits)
		}
	}
	return []models.RawAlert{fallbackInstance(aggregated)}, 0
}

// fallbackInstance projects the aggregated alert back into raw-alert shape.
func fallbackInstance(aggregated models.AggregatedAlert) models.RawAlert {
	refs := make([]any, len(aggregated.ReferenceUUIDs))
	for i, id := range aggregated.ReferenceUUIDs {
		refs[i] = id
	}
	return models.RawAlert{
		"@timestamp":      aggregated.LastSeen,
		"source":          map[string]any{"ip": aggregated.SIP},
		"destination":     map[string]any{"ip": aggregated.DIP},
		"proto":           aggregated.Proto,
		"rule_name":       aggregated.RuleName,
		"log_type":        aggregated.LogType,
		"uri_template":    aggregated.URITemplate,
		"reference_uuids": refs,
	}
}
