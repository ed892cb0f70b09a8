// Package bizmatch implements the second pipeline stage: the learned
// business-false-positive matcher. Feature extraction mirrors the offline
// training job exactly; the extractor state rides inside the model
// artifact so online vectors line up with the trained ensemble.
package bizmatch

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/socrates-soc/socrates/pkg/models"
)

var wordRe = regexp.MustCompile(`[A-Za-z0-9_]{2,}`)

// hashToBin maps a token onto a vector index via the first 8 hex chars of
// its SHA-1. Must not change: trained models depend on it.
func hashToBin(text string, dim int) int {
	sum := sha1.Sum([]byte(text))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return int(v % uint64(dim))
}

// l2Cap divides by the L2 norm when it exceeds 1, bounding the vector
// without flattening sparse ones.
func l2Cap(vector []float64) {
	var sum float64
	for _, v := range vector {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm <= 1.0 {
		return
	}
	for i := range vector {
		vector[i] /= norm
	}
}

// firstOf tries each dotted path against the alert and then the context.
func firstOf(raw, context models.RawAlert, paths ...string) any {
	for _, path := range paths {
		if v := raw.First(path); v != nil {
			return v
		}
		if v := context.First(path); v != nil {
			return v
		}
	}
	return nil
}

func firstString(raw, context models.RawAlert, def string, paths ...string) string {
	if v := firstOf(raw, context, paths...); v != nil {
		return models.Stringify(v)
	}
	return def
}

// StructuralExtractor hashes categorical identity tokens into a fixed-dim
// count vector.
type StructuralExtractor struct {
	Dim int
}

// Transform extracts the categorical token vector for one raw instance.
func (e StructuralExtractor) Transform(raw, context models.RawAlert) []float64 {
	vector := make([]float64, e.Dim)
	for _, token := range e.tokens(raw, context) {
		vector[hashToBin(token, e.Dim)] += 1.0
	}
	l2Cap(vector)
	return vector
}

func (e StructuralExtractor) tokens(raw, context models.RawAlert) []string {
	sip := firstString(raw, context, "-", "source.ip", "src_ip", "sip")
	dip := firstString(raw, context, "-", "destination.ip", "dst_ip", "dip")
	proto := strings.ToLower(firstString(raw, context, "-", "network.transport", "proto", "protocol"))
	ruleName := firstString(raw, context, "-", "rule.name", "rule_name")
	uriTemplate := firstString(raw, context, "-", "uri_template", "url.path", "http.request.uri", "uri")
	logType := firstString(raw, context, "-", "log_type", "event.dataset", "event.module", "type")

	sport := toPort(firstOf(raw, context, "source.port", "sport", "src_port"))
	dport := toPort(firstOf(raw, context, "destination.port", "dport", "dst_port"))

	return []string{
		"sip:" + sip,
		"dip:" + dip,
		"proto:" + proto,
		"rule:" + ruleName,
		"uri:" + uriTemplate,
		"log_type:" + logType,
		"sport_bucket:" + portBucket(sport),
		"dport_bucket:" + portBucket(dport),
		"sip_dip:" + sip + "->" + dip,
		"rule_proto:" + ruleName + "|" + proto,
	}
}

func toPort(v any) int {
	f, ok := models.ToFloat(v)
	if !ok {
		return -1
	}
	return int(f)
}

func portBucket(port int) string {
	switch {
	case port <= 0:
		return "unknown"
	case port < 1024:
		return "system"
	case port < 49152:
		return "registered"
	default:
		return "dynamic"
	}
}

// SemanticExtractor hashes word tokens from the free-text fields into a
// fixed-dim count vector.
type SemanticExtractor struct {
	Dim int
}

// Transform extracts the bag-of-words vector for one raw instance.
func (e SemanticExtractor) Transform(raw, context models.RawAlert) []float64 {
	vector := make([]float64, e.Dim)
	tokens := wordRe.FindAllString(strings.ToLower(e.semanticText(raw, context)), -1)
	if len(tokens) == 0 {
		return vector
	}
	for _, token := range tokens {
		vector[hashToBin(token, e.Dim)] += 1.0
	}
	l2Cap(vector)
	return vector
}

func (e SemanticExtractor) semanticText(raw, context models.RawAlert) string {
	fields := []string{
		firstString(raw, context, "", "payload"),
		firstString(raw, context, "", "message"),
		firstString(raw, context, "", "http.request.body.content"),
		firstString(raw, context, "", "http.request.body"),
		firstString(raw, context, "", "uri_template"),
		firstString(raw, context, "", "url.path"),
		firstString(raw, context, "", "rule_name"),
		firstString(raw, context, "", "log_type"),
	}
	var parts []string
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// TemporalExtractor derives calendar features plus the inter-arrival gap
// per (sip, dip, rule) flow. Stateful: it remembers the last timestamp it
// saw for each flow key.
type TemporalExtractor struct {
	Dim           int
	BusinessStart int
	BusinessEnd   int

	lastSeenByKey map[string]float64
	now           func() time.Time
}

// NewTemporalExtractor creates a temporal extractor with empty flow state.
func NewTemporalExtractor(dim, businessStart, businessEnd int) *TemporalExtractor {
	return &TemporalExtractor{
		Dim:           dim,
		BusinessStart: businessStart,
		BusinessEnd:   businessEnd,
		lastSeenByKey: make(map[string]float64),
		now:           time.Now,
	}
}

// Transform extracts the temporal vector for one raw instance.
func (e *TemporalExtractor) Transform(raw, context models.RawAlert, key string) []float64 {
	ts := e.timestamp(raw, context)

	hour := float64(ts.Hour())
	// Monday-based weekday, matching the trained calendar features.
	dow := float64((int(ts.Weekday()) + 6) % 7)
	isWeekend := 0.0
	if dow >= 5 {
		isWeekend = 1.0
	}
	isBusinessHours := 0.0
	if e.BusinessStart <= ts.Hour() && ts.Hour() < e.BusinessEnd && isWeekend == 0.0 {
		isBusinessHours = 1.0
	}
	month := float64(ts.Month())
	quarter := float64((int(ts.Month())-1)/3 + 1)

	currentTS := float64(ts.Unix())
	deltaS := 0.0
	if prev, ok := e.lastSeenByKey[key]; ok {
		deltaS = max(currentTS-prev, 0.0)
	}
	e.lastSeenByKey[key] = currentTS

	vector := make([]float64, e.Dim)
	base := []float64{
		hour / 23.0,
		dow / 6.0,
		isWeekend,
		isBusinessHours,
		(month - 1.0) / 11.0,
		(quarter - 1.0) / 3.0,
		isFixedHoliday(ts),
		min(deltaS/86400.0, 7.0) / 7.0,
		min(currentTS/2_000_000_000.0, 1.0),
	}
	copy(vector, base)
	return vector
}

func (e *TemporalExtractor) timestamp(raw, context models.RawAlert) time.Time {
	if v := raw.First("@timestamp", "timestamp"); v != nil {
		return models.ParseTimestamp(v, e.now())
	}
	if v := context.First("last_seen", "first_seen"); v != nil {
		return models.ParseTimestamp(v, e.now())
	}
	return e.now().UTC()
}

func isFixedHoliday(ts time.Time) float64 {
	switch {
	case ts.Month() == time.January && ts.Day() == 1,
		ts.Month() == time.July && ts.Day() == 4,
		ts.Month() == time.December && ts.Day() == 25:
		return 1.0
	default:
		return 0.0
	}
}

// FeatureState is the extractor configuration persisted in the model
// artifact so online extraction matches training.
type FeatureState struct {
	StructuralDim     int `json:"structural_dim"`
	SemanticDim       int `json:"semantic_dim"`
	TemporalDim       int `json:"temporal_dim"`
	BusinessStartHour int `json:"business_start_hour"`
	BusinessEndHour   int `json:"business_end_hour"`
}

// FeaturePipeline concatenates the three extractors.
type FeaturePipeline struct {
	structural StructuralExtractor
	semantic   SemanticExtractor
	temporal   *TemporalExtractor
}

// NewFeaturePipeline builds a pipeline from persisted extractor state.
func NewFeaturePipeline(state FeatureState) *FeaturePipeline {
	return &FeaturePipeline{
		structural: StructuralExtractor{Dim: state.StructuralDim},
		semantic:   SemanticExtractor{Dim: state.SemanticDim},
		temporal:   NewTemporalExtractor(state.TemporalDim, state.BusinessStartHour, state.BusinessEndHour),
	}
}

// Dim returns the concatenated vector length.
func (p *FeaturePipeline) Dim() int {
	return p.structural.Dim + p.semantic.Dim + p.temporal.Dim
}

// TransformOne builds the feature vector for one raw instance, with the
// aggregated alert payload as fallback context.
func (p *FeaturePipeline) TransformOne(raw, context models.RawAlert) []float64 {
	key := p.temporalKey(raw, context)
	vector := make([]float64, 0, p.Dim())
	vector = append(vector, p.structural.Transform(raw, context)...)
	vector = append(vector, p.semantic.Transform(raw, context)...)
	vector = append(vector, p.temporal.Transform(raw, context, key)...)
	return vector
}

func (p *FeaturePipeline) temporalKey(raw, context models.RawAlert) string {
	sip := firstString(raw, context, "-", "source.ip", "sip", "src_ip")
	dip := firstString(raw, context, "-", "destination.ip", "dip", "dst_ip")
	rule := firstString(raw, context, "-", "rule.name", "rule_name")
	return sip + "|" + dip + "|" + rule
}
