package models

import "math"

// MatchDecision is the business-false-positive verdict for one aggregated
// alert. True only when at least MinInstanceCount instances were scored and
// the aggregate reached the threshold.
type MatchDecision struct {
	AggregateScore          float64   `json:"aggregate_score"`
	Threshold               float64   `json:"threshold"`
	MinInstanceCount        int       `json:"min_instance_count"`
	InstanceScores          []float64 `json:"instance_scores"`
	IsBusinessFalsePositive bool      `json:"is_business_false_positive"`
}

// ToPayload renders the decision for queue annotation, with scores rounded
// to four decimals and the fetched-instance count attached.
func (d MatchDecision) ToPayload(fetchedInstanceCount int) map[string]any {
	scores := make([]float64, len(d.InstanceScores))
	for i, s := range d.InstanceScores {
		scores[i] = Round4(s)
	}
	return map[string]any{
		"aggregate_score":            Round4(d.AggregateScore),
		"threshold":                  Round4(d.Threshold),
		"min_instance_count":         d.MinInstanceCount,
		"instance_scores":            scores,
		"is_business_false_positive": d.IsBusinessFalsePositive,
		"fetched_instance_count":     fetchedInstanceCount,
	}
}

// Round4 rounds to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
