package models

import (
	"strings"
	"time"
)

// NormalizedAlert is the deterministic projection of a RawAlert used for
// bucketing. Severity and confidence are normalized to [0,1]; the original
// document is carried verbatim in Raw.
type NormalizedAlert struct {
	RawID        string
	Timestamp    time.Time
	SIP          string
	DIP          string
	Proto        string
	RuleName     string
	LogType      string
	URITemplate  string
	Severity     float64
	Confidence   float64
	SrcExternal  bool
	DstSensitive bool
	Raw          RawAlert
}

// BucketKey identifies the aggregation bucket this alert belongs to. It
// depends only on the six dimension fields.
func (a *NormalizedAlert) BucketKey() string {
	return strings.Join([]string{a.SIP, a.DIP, a.Proto, a.RuleName, a.LogType, a.URITemplate}, "|")
}

// BucketSnapshot is the immutable summary of a bucket at flush time.
type BucketSnapshot struct {
	BucketKey         string
	SIP               string
	DIP               string
	Proto             string
	RuleName          string
	LogType           string
	URITemplate       string
	WindowStart       time.Time
	WindowEnd         time.Time
	Count             int
	Representative    RawAlert
	RawRefIDs         []string
	AvgSeverity       float64
	AvgConfidence     float64
	SrcExternalRatio  float64
	DstSensitiveRatio float64
}

// Risk levels assigned by the scorer.
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// ScoreBreakdown carries the four subscores in [0,1] and the squashed final
// score in [0,100].
type ScoreBreakdown struct {
	FrequencyScore float64 `json:"frequency_score"`
	RuleScore      float64 `json:"rule_score"`
	ContextScore   float64 `json:"context_score"`
	RarityScore    float64 `json:"rarity_score"`
	FinalScore     float64 `json:"final_score"`
	RiskLevel      string  `json:"risk_level"`
}

// AggregatedAlert is the external JSON representation of a bucket snapshot
// plus its risk score. first_seen/last_seen are epoch seconds.
type AggregatedAlert struct {
	SIP             string          `json:"sip"`
	DIP             string          `json:"dip"`
	Proto           string          `json:"proto"`
	RuleName        string          `json:"rule_name"`
	LogType         string          `json:"log_type"`
	ReferenceUUIDs  []string        `json:"reference_uuids"`
	AggregatedCount int             `json:"aggregated_count"`
	FirstSeen       int64           `json:"first_seen"`
	LastSeen        int64           `json:"last_seen"`
	URITemplate     string          `json:"uri_template"`
	RiskScores      *ScoreBreakdown `json:"risk_scores"`
}

// AggregatedAlertFromPayload leniently reconstructs an AggregatedAlert from
// a queue payload, substituting the unknown_* sentinels the normalizer uses.
// The payload itself is kept by callers for annotation.
func AggregatedAlertFromPayload(payload RawAlert) AggregatedAlert {
	out := AggregatedAlert{
		SIP:             payload.FirstString("unknown_src", "sip"),
		DIP:             payload.FirstString("unknown_dst", "dip"),
		Proto:           strings.ToLower(payload.FirstString("unknown_proto", "proto")),
		RuleName:        payload.FirstString("unknown_rule", "rule_name"),
		LogType:         payload.FirstString("unknown_log_type", "log_type"),
		URITemplate:     payload.FirstString("-", "uri_template"),
		AggregatedCount: 1,
	}
	if v, ok := payload["reference_uuids"].([]any); ok {
		for _, item := range v {
			out.ReferenceUUIDs = append(out.ReferenceUUIDs, Stringify(item))
		}
	}
	if f, ok := ToFloat(payload["aggregated_count"]); ok {
		out.AggregatedCount = int(f)
	}
	if f, ok := ToFloat(payload["first_seen"]); ok {
		out.FirstSeen = int64(f)
	}
	if f, ok := ToFloat(payload["last_seen"]); ok {
		out.LastSeen = int64(f)
	}
	return out
}
