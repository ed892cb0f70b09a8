package bizmatch

import (
	"math"
	"sort"

	"github.com/socrates-soc/socrates/pkg/models"
)

// Matcher scores raw instances with the trained ensemble and aggregates
// them into a single business-false-positive decision.
type Matcher struct {
	pipeline         *FeaturePipeline
	model            *TreeEnsemble
	threshold        float64
	minInstanceCount int
}

// NewMatcher builds a matcher from a loaded artifact. The config threshold
// overrides the artifact's when set.
func NewMatcher(artifact *Artifact, threshold float64, minInstanceCount int) *Matcher {
	if threshold <= 0 {
		threshold = artifact.Threshold
	}
	if minInstanceCount <= 0 {
		minInstanceCount = 1
	}
	return &Matcher{
		pipeline:         NewFeaturePipeline(artifact.FeatureState),
		model:            artifact.Model,
		threshold:        threshold,
		minInstanceCount: minInstanceCount,
	}
}

// Evaluate scores each instance against the context alert and folds the
// scores into a decision. No instances means no evidence: score 0 and not
// a business false positive.
func (m *Matcher) Evaluate(instances []models.RawAlert, context models.RawAlert) models.MatchDecision {
	decision := models.MatchDecision{
		Threshold:        m.threshold,
		MinInstanceCount: m.minInstanceCount,
	}
	if len(instances) == 0 {
		return decision
	}

	scores := make([]float64, len(instances))
	for i, instance := range instances {
		scores[i] = m.model.PredictProba(m.pipeline.TransformOne(instance, context))
	}
	decision.InstanceScores = scores
	decision.AggregateScore = m.aggregate(scores)
	decision.IsBusinessFalsePositive = len(scores) >= m.minInstanceCount &&
		decision.AggregateScore >= m.threshold
	return decision
}

// aggregate blends the high tail with the bulk: 0.5 p95 + 0.3 mean +
// 0.2 hit ratio. A handful of outliers cannot flip the decision alone,
// and neither can a mediocre majority.
func (m *Matcher) aggregate(scores []float64) float64 {
	var sum float64
	hits := 0
	for _, s := range scores {
		sum += s
		if s >= m.threshold {
			hits++
		}
	}
	mean := sum / float64(len(scores))
	hitRatio := float64(hits) / float64(len(scores))
	return 0.5*percentile95(scores) + 0.3*mean + 0.2*hitRatio
}

// percentile95 interpolates linearly between the surrounding order
// statistics at rank 0.95*(n-1).
func percentile95(scores []float64) float64 {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	rank := 0.95 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
