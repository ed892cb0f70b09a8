package reasoner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/metrics"
	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/queue"
)

const (
	stageName   = "module3"
	moduleName  = "module_context_enhanced_llm"
	annotateKey = "module3_investigation"
)

// Stage is the investigation worker: pop alert → investigate → annotate →
// route. Inconclusive or low-confidence verdicts go to manual review,
// everything else to the final queue.
type Stage struct {
	reasoner            *Reasoner
	confidenceThreshold float64

	output       *queue.Buffer
	manualReview *queue.Buffer
	runner       *queue.Runner
}

// NewStage wires the module 3 worker around a ready reasoner.
func NewStage(cfg config.Module3Config, reasoner *Reasoner, input, output, manualReview *queue.Buffer) *Stage {
	s := &Stage{
		reasoner:            reasoner,
		confidenceThreshold: cfg.Reasoner.ManualReviewConfidenceThreshold,
		output:              output,
		manualReview:        manualReview,
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

	investigationID := uuid.NewString()
	verdict := s.reasoner.Investigate(ctx, models.InvestigationAlert{Payload: payload})

	payload[annotateKey] = verdict.ToPayload()
	payload["investigation_id"] = investigationID
	payload["module"] = moduleName
	payload["version"] = 1

	dest := s.output
	if verdict.Verdict == models.VerdictInconclusive || verdict.Confidence < s.confidenceThreshold {
		dest = s.manualReview
	}

	slog.Info("Investigation complete",
		"stage", stageName,
		"investigation_id", investigationID,
		"verdict", verdict.Verdict,
		"severity", verdict.Severity,
		"confidence", models.Round4(verdict.Confidence),
		"tools_used", len(verdict.ToolTrace),
		"queue", dest.Key())

	if err := dest.Push(ctx, payload); err != nil {
		return err
	}
	metrics.StageRouted.WithLabelValues(stageName, dest.Key()).Inc()
	return nil
}
