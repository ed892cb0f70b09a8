package aggregator

import (
	"math"
	"strings"
	"time"

	"github.com/socrates-soc/socrates/pkg/config"
	"github.com/socrates-soc/socrates/pkg/models"
)

var (
	strongKeywords = []string{"rce", "remote code", "deserialization", "sql", "sqli", "command injection"}
	mediumKeywords = []string{"xss", "ssrf", "path traversal", "upload", "shell", "webattack"}
)

// Scorer computes the four-component composite risk score for a flushed
// bucket snapshot.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer with the given weights and routing threshold.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score combines frequency, rule, context, and rarity signals into the
// squashed [0,100] final score and its risk level.
func (s *Scorer) Score(snapshot *models.BucketSnapshot, historicalDailyAvg float64, profile AssetProfile) *models.ScoreBreakdown {
	sFreq := frequencyScore(snapshot.Count, snapshot.WindowStart, snapshot.WindowEnd)
	sRule := ruleScore(snapshot.AvgSeverity, snapshot.AvgConfidence, snapshot.RuleName, snapshot.LogType)
	sCtx := contextScore(snapshot.SrcExternalRatio, snapshot.DstSensitiveRatio, profile)
	sRare := rarityScore(historicalDailyAvg)

	weighted := s.cfg.WFreq*sFreq + s.cfg.WRule*sRule + s.cfg.WCtx*sCtx + s.cfg.WRare*sRare
	final := squash(weighted)

	return &models.ScoreBreakdown{
		FrequencyScore: models.Round4(sFreq),
		RuleScore:      models.Round4(sRule),
		ContextScore:   models.Round4(sCtx),
		RarityScore:    models.Round4(sRare),
		FinalScore:     models.Round2(final),
		RiskLevel:      riskLevel(final),
	}
}

// IsHighPriority reports whether the score clears the routing threshold.
func (s *Scorer) IsHighPriority(score *models.ScoreBreakdown) bool {
	return score.FinalScore >= s.cfg.Threshold
}

func frequencyScore(count int, firstSeen, lastSeen time.Time) float64 {
	base := NormalizeFrequency(count)
	durationS := max(lastSeen.Sub(firstSeen).Seconds(), 1.0)
	burst := max(0.0, min((float64(count)/durationS)/2.0, 1.0))
	return max(0.0, min(0.6*base+0.4*burst, 1.0))
}

func ruleScore(severity, confidence float64, ruleName, logType string) float64 {
	kw := ruleKeywordWeight(ruleName, logType)
	return max(0.0, min(0.45*severity+0.35*confidence+0.20*kw, 1.0))
}

func contextScore(srcExternalRatio, dstSensitiveRatio float64, profile AssetProfile) float64 {
	sensitiveFlag := 0.0
	if profile.Sensitive {
		sensitiveFlag = 1.0
	}
	combined := max(dstSensitiveRatio, sensitiveFlag)
	return max(0.0, min(0.40*srcExternalRatio+0.30*profile.Criticality+0.20*profile.Exposure+0.10*combined, 1.0))
}

func rarityScore(historicalDailyAvg float64) float64 {
	return max(0.0, min(1.0/(1.0+math.Log1p(historicalDailyAvg+1.0)), 1.0))
}

// squash spreads the weighted sum over [0,100] with a sigmoid centered at
// 0.5 so mid-range differences dominate the output.
func squash(value float64) float64 {
	return 100.0 / (1.0 + math.Exp(-7.0*(value-0.5)))
}

func riskLevel(finalScore float64) string {
	switch {
	case finalScore >= 85.0:
		return models.RiskLevelCritical
	case finalScore >= 70.0:
		return models.RiskLevelHigh
	case finalScore >= 45.0:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func ruleKeywordWeight(ruleName, logType string) float64 {
	text := strings.ToLower(ruleName + " " + logType)
	if containsAny(text, strongKeywords...) {
		return 0.95
	}
	if containsAny(text, mediumKeywords...) {
		return 0.75
	}
	return 0.45
}
