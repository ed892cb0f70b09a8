package bizmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socrates-soc/socrates/pkg/models"
)

// constantArtifact builds an artifact whose ensemble gives every instance
// the same probability, controlled via a single leaf margin.
func constantArtifact(margin, threshold float64) *Artifact {
	return &Artifact{
		FeatureState: testState(),
		Threshold:    threshold,
		Model:        &TreeEnsemble{Trees: []*TreeNode{leaf(margin)}},
	}
}

func TestPercentile95Interpolates(t *testing.T) {
	assert.InDelta(t, 0.5, percentile95([]float64{0.5}), 1e-9)
	assert.InDelta(t, 0.95, percentile95([]float64{1.0, 0.0}), 1e-9)
	// rank 0.95*(4-1)=2.85 between 0.9 and 0.95
	assert.InDelta(t, 0.9425, percentile95([]float64{0.95, 0.9, 0.85, 0.8}), 1e-9)
}

func TestAggregateBlendsTailMeanAndHitRatio(t *testing.T) {
	m := &Matcher{threshold: 0.7}

	// p95 0.9425, mean 0.875, hit ratio 1.0
	agg := m.aggregate([]float64{0.95, 0.9, 0.85, 0.8})
	assert.InDelta(t, 0.93375, agg, 1e-9)

	// All below the threshold: hit ratio contributes nothing.
	low := m.aggregate([]float64{0.1, 0.2})
	assert.InDelta(t, 0.5*0.195+0.3*0.15, low, 1e-9)
}

func TestEvaluateMarksRecurringPatternAsBusinessFalsePositive(t *testing.T) {
	matcher := NewMatcher(constantArtifact(2.0, 0.7), 0.7, 3)

	instances := []models.RawAlert{wafInstance(), wafInstance(), wafInstance(), wafInstance()}
	decision := matcher.Evaluate(instances, nil)

	require.Len(t, decision.InstanceScores, 4)
	// sigmoid(2) = 0.8808 for every instance; aggregate = 0.8*p + 0.2
	assert.InDelta(t, 0.8808, decision.InstanceScores[0], 1e-4)
	assert.InDelta(t, 0.9047, decision.AggregateScore, 1e-3)
	assert.True(t, decision.IsBusinessFalsePositive)
}

func TestEvaluateRequiresMinInstanceCount(t *testing.T) {
	matcher := NewMatcher(constantArtifact(2.0, 0.7), 0.7, 3)

	decision := matcher.Evaluate([]models.RawAlert{wafInstance(), wafInstance()}, nil)
	assert.Greater(t, decision.AggregateScore, 0.7)
	assert.False(t, decision.IsBusinessFalsePositive, "two instances cannot establish a pattern")
}

func TestEvaluateLowScoresAreNotSuppressed(t *testing.T) {
	matcher := NewMatcher(constantArtifact(-2.0, 0.7), 0.7, 1)

	decision := matcher.Evaluate([]models.RawAlert{wafInstance()}, nil)
	assert.Less(t, decision.AggregateScore, 0.7)
	assert.False(t, decision.IsBusinessFalsePositive)
}

func TestEvaluateEmptyInstancesIsNeverAMatch(t *testing.T) {
	matcher := NewMatcher(constantArtifact(5.0, 0.7), 0.7, 1)

	decision := matcher.Evaluate(nil, nil)
	assert.Zero(t, decision.AggregateScore)
	assert.False(t, decision.IsBusinessFalsePositive)
	assert.Empty(t, decision.InstanceScores)
}

func TestNewMatcherFallsBackToArtifactThreshold(t *testing.T) {
	matcher := NewMatcher(constantArtifact(0.0, 0.63), 0, 2)
	assert.InDelta(t, 0.63, matcher.threshold, 1e-9)
	assert.Equal(t, 2, matcher.minInstanceCount)

	defaulted := NewMatcher(constantArtifact(0.0, 0.63), 0.8, 0)
	assert.InDelta(t, 0.8, defaulted.threshold, 1e-9)
	assert.Equal(t, 1, defaulted.minInstanceCount)
}
