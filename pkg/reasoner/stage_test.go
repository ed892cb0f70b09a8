package reasoner

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
	"github.com/socrates-soc/socrates/pkg/queue"
)

type m3Fixture struct {
	stage        *Stage
	input        *queue.Buffer
	output       *queue.Buffer
	manualReview *queue.Buffer
}

func newM3Fixture(t *testing.T, gen Generator) *m3Fixture {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Module3Config{
		Queue: config.M3QueueConfig{PopTimeoutS: 1},
		Reasoner: config.ReasonerConfig{
			MaxToolIterations:               8,
			ToolResultMaxItems:              30,
			ManualReviewConfidenceThreshold: 0.55,
		},
	}

	reasoner := newTestReasoner(gen, &fakeExecutor{})
	input := queue.NewBuffer(client, "socrates:alerts:investigation", 0)
	output := queue.NewBuffer(client, "socrates:alerts:final", 0)
	manualReview := queue.NewBuffer(client, "socrates:alerts:manual_review", 0)

	stage := NewStage(cfg, reasoner, input, output, manualReview)
	return &m3Fixture{stage: stage, input: input, output: output, manualReview: manualReview}
}

func confidentGenerator(verdict string, confidence float64) *scriptedGenerator {
	plan := `{"tool_calls": [{"tool": "search_waf_logs", "args": {"query": {"match_all": {}}}}]}`
	final := `{"verdict": "` + verdict + `", "severity": "HIGH", "confidence": ` +
		models.Stringify(confidence) + `, "reasoning_summary": "clear evidence", "recommended_action": "block_source_ip"}`
	return &scriptedGenerator{responses: []string{plan, `{"summary": "ok"}`, final}}
}

func TestStageRoutesConfidentVerdictToFinalQueue(t *testing.T) {
	f := newM3Fixture(t, confidentGenerator("MALICIOUS", 0.92))
	ctx := context.Background()

	require.NoError(t, f.stage.handle(ctx, models.RawAlert{
		"sip": "198.51.100.9", "dip": "10.0.0.5", "rule_name": "SQL injection",
	}))

	payload, err := f.output.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, payload)

	assert.Equal(t, "module_context_enhanced_llm", payload["module"])
	assert.Equal(t, float64(1), payload["version"])
	assert.NotEmpty(t, payload["investigation_id"])

	investigation := payload["module3_investigation"].(map[string]any)
	assert.Equal(t, "MALICIOUS", investigation["verdict"])
	assert.Equal(t, 0.92, investigation["confidence"])
	assert.NotEmpty(t, investigation["tool_trace"])
	timestamps := investigation["timestamps"].(map[string]any)
	assert.NotEmpty(t, timestamps["started_at"])

	empty, err := f.manualReview.Pop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestStageRoutesLowConfidenceToManualReview(t *testing.T) {
	f := newM3Fixture(t, confidentGenerator("SUSPICIOUS", 0.4))
	ctx := context.Background()

	require.NoError(t, f.stage.handle(ctx, models.RawAlert{"rule_name": "odd traffic"}))

	payload, err := f.manualReview.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, payload, "confidence below threshold needs a human")

	empty, err := f.output.Pop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestStageRoutesInconclusiveToManualReviewRegardlessOfConfidence(t *testing.T) {
	f := newM3Fixture(t, confidentGenerator("INCONCLUSIVE", 0.9))
	ctx := context.Background()

	require.NoError(t, f.stage.handle(ctx, models.RawAlert{"rule_name": "odd traffic"}))

	payload, err := f.manualReview.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, payload)

	investigation := payload["module3_investigation"].(map[string]any)
	assert.Equal(t, "INCONCLUSIVE", investigation["verdict"])
}

func TestStageBoundaryConfidenceGoesToFinalQueue(t *testing.T) {
	f := newM3Fixture(t, confidentGenerator("BENIGN", 0.55))
	ctx := context.Background()

	require.NoError(t, f.stage.handle(ctx, models.RawAlert{"rule_name": "scanner noise"}))

	payload, err := f.output.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, payload, "threshold is exclusive: 0.55 passes")
}
