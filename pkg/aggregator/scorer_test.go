package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
)

func defaultScoring() config.ScoringConfig {
	return config.ScoringConfig{
		Threshold: 50.0,
		WFreq:     0.35,
		WRule:     0.25,
		WCtx:      0.20,
		WRare:     0.20,
	}
}

func snapshotFor(count int, duration time.Duration) *models.BucketSnapshot {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	return &models.BucketSnapshot{
		BucketKey:   "k",
		RuleName:    "SQLi Attempt",
		LogType:     "waf",
		WindowStart: start,
		WindowEnd:   start.Add(duration),
		Count:       count,
	}
}

func TestScoreHighSeverityBurstIsCritical(t *testing.T) {
	scorer := NewScorer(defaultScoring())
	snapshot := snapshotFor(50, 10*time.Second)
	snapshot.AvgSeverity = 0.9
	snapshot.AvgConfidence = 0.8
	snapshot.SrcExternalRatio = 1.0
	snapshot.DstSensitiveRatio = 1.0

	profile := AssetProfile{Criticality: 0.8, Exposure: 0.7, Sensitive: true}
	score := scorer.Score(snapshot, 0, profile)

	assert.Greater(t, score.FinalScore, 85.0)
	assert.Equal(t, models.RiskLevelCritical, score.RiskLevel)
	assert.True(t, scorer.IsHighPriority(score))
}

func TestScoreSubscoresStayInUnitRange(t *testing.T) {
	scorer := NewScorer(defaultScoring())
	cases := []*models.BucketSnapshot{
		snapshotFor(1, 0),
		snapshotFor(10000, time.Second),
		snapshotFor(3, 2*time.Hour),
	}
	for _, snapshot := range cases {
		snapshot.AvgSeverity = 1.0
		snapshot.AvgConfidence = 1.0
		snapshot.SrcExternalRatio = 1.0
		snapshot.DstSensitiveRatio = 1.0

		score := scorer.Score(snapshot, 500, AssetProfile{Criticality: 1, Exposure: 1, Sensitive: true})
		for name, v := range map[string]float64{
			"frequency": score.FrequencyScore,
			"rule":      score.RuleScore,
			"context":   score.ContextScore,
			"rarity":    score.RarityScore,
		} {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 1.0, name)
		}
		assert.GreaterOrEqual(t, score.FinalScore, 0.0)
		assert.LessOrEqual(t, score.FinalScore, 100.0)
	}
}

func TestRarityScoreDecaysWithHistory(t *testing.T) {
	novel := rarityScore(0)
	seen := rarityScore(10)
	constant := rarityScore(1000)

	assert.Greater(t, novel, seen)
	assert.Greater(t, seen, constant)
	assert.InDelta(t, 0.5906, models.Round4(novel), 1e-4)
}

func TestRuleKeywordWeightTiers(t *testing.T) {
	assert.Equal(t, 0.95, ruleKeywordWeight("SQL injection attempt", "waf"))
	assert.Equal(t, 0.95, ruleKeywordWeight("Remote Code Execution", "ids"))
	assert.Equal(t, 0.75, ruleKeywordWeight("Stored XSS", "waf"))
	assert.Equal(t, 0.75, ruleKeywordWeight("suspicious", "webattack"))
	assert.Equal(t, 0.45, ruleKeywordWeight("generic anomaly", "netflow"))
}

func TestRiskLevelThresholds(t *testing.T) {
	assert.Equal(t, models.RiskLevelCritical, riskLevel(85.0))
	assert.Equal(t, models.RiskLevelHigh, riskLevel(70.0))
	assert.Equal(t, models.RiskLevelHigh, riskLevel(84.99))
	assert.Equal(t, models.RiskLevelMedium, riskLevel(45.0))
	assert.Equal(t, models.RiskLevelLow, riskLevel(44.99))
}

func TestIsHighPriorityUsesThreshold(t *testing.T) {
	scorer := NewScorer(defaultScoring())
	assert.True(t, scorer.IsHighPriority(&models.ScoreBreakdown{FinalScore: 50.0}))
	assert.False(t, scorer.IsHighPriority(&models.ScoreBreakdown{FinalScore: 49.99}))
}
