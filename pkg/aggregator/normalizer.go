// Package aggregator implements the first pipeline stage: normalization,
// windowed bucketing, composite risk scoring, and threshold routing.
package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/socrates-soc/socrates/pkg/models"
)

var (
	uuidRe      = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}\b`)
	shaRe       = regexp.MustCompile(`\b[a-fA-F0-9]{40,64}\b`)
	hexTokenRe  = regexp.MustCompile(`\b[0-9a-fA-F]{12,39}\b`)
	base64Re    = regexp.MustCompile(`\b[A-Za-z0-9+_-]{16,}={0,2}\b`)
	ipRe        = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	emailRe     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	timestampRe = regexp.MustCompile(`\b\d{10,13}\b`)
	longNumRe   = regexp.MustCompile(`\b\d{4,}\b`)
	queryKVRe   = regexp.MustCompile(`([?&])([^=&]+)=([^&]*)`)
	slashesRe   = regexp.MustCompile(`/{2,}`)
	// Opaque path segments are replaced whole; matched per segment because
	// the rule needs slash context on both sides.
	pathSegmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

var severityMap = map[string]float64{
	"critical": 1.0,
	"high":     0.8,
	"medium":   0.5,
	"low":      0.2,
	"info":     0.05,
}

const defaultScore = 0.3

// Normalizer is the pure RawAlert → NormalizedAlert projection. now
// supplies the fallback timestamp; tests pin it.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer using wall-clock time for fallbacks.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize projects one raw alert onto the bucketing dimensions. Missing
// fields become unknown_* sentinels rather than errors.
func (n *Normalizer) Normalize(alert models.RawAlert) *models.NormalizedAlert {
	ts := models.ParseTimestamp(alert.First("@timestamp", "timestamp", "time"), n.now())
	sip := stringOrDefault(alert.First("source.ip", "src_ip", "sip"), "unknown_src")
	dip := stringOrDefault(alert.First("destination.ip", "dst_ip", "dip"), "unknown_dst")
	proto := strings.ToLower(stringOrDefault(alert.First("network.transport", "proto", "protocol"), "unknown_proto"))
	ruleName := stringOrDefault(alert.First("rule.name", "rule_name", "signature", "alert.rule"), "unknown_rule")
	logType := stringOrDefault(alert.First("log_type", "event.dataset", "type", "event.module"), "unknown_log_type")
	uri := stringOrDefault(alert.First("url.path", "http.request.uri", "uri"), "-")

	return &models.NormalizedAlert{
		RawID:        deriveRawID(alert, ts),
		Timestamp:    ts,
		SIP:          sip,
		DIP:          dip,
		Proto:        proto,
		RuleName:     ruleName,
		LogType:      logType,
		URITemplate:  NormalizeURI(uri),
		Severity:     normalizeScore(alert.First("severity", "rule.severity", "priority")),
		Confidence:   normalizeScore(alert.First("confidence", "risk_score", "risk.score")),
		SrcExternal:  isExternalIP(sip),
		DstSensitive: isSensitiveAsset(alert),
		Raw:          alert,
	}
}

// NormalizeURI canonicalizes a request path: volatile query values and
// opaque substrings become placeholders so equivalent requests share one
// template. Idempotent.
func NormalizeURI(uri string) string {
	cleaned := strings.TrimSpace(uri)
	if cleaned == "" {
		cleaned = "-"
	}
	cleaned = queryKVRe.ReplaceAllStringFunc(cleaned, replaceQueryValue)
	cleaned = uuidRe.ReplaceAllString(cleaned, "<UUID>")
	cleaned = shaRe.ReplaceAllString(cleaned, "<HASH>")
	cleaned = hexTokenRe.ReplaceAllString(cleaned, "<TOKEN>")
	cleaned = base64Re.ReplaceAllString(cleaned, "<B64TOKEN>")
	cleaned = emailRe.ReplaceAllString(cleaned, "<EMAIL>")
	cleaned = ipRe.ReplaceAllString(cleaned, "<IP>")
	cleaned = timestampRe.ReplaceAllString(cleaned, "<TIMESTAMP>")
	cleaned = longNumRe.ReplaceAllString(cleaned, "<NUM>")
	cleaned = slashesRe.ReplaceAllString(cleaned, "/")
	cleaned = replaceLongSegments(cleaned)
	if len(cleaned) > 2048 {
		cleaned = cleaned[:2048]
	}
	return cleaned
}

func replaceQueryValue(match string) string {
	parts := queryKVRe.FindStringSubmatch(match)
	prefix, rawKey, rawValue := parts[1], parts[2], parts[3]
	key := strings.ToLower(rawKey)
	value := strings.TrimSpace(rawValue)
	if value == "" {
		return prefix + rawKey + "="
	}
	if containsAny(key, "token") {
		return prefix + rawKey + "=<TOKEN>"
	}
	if containsAny(key, "session", "auth", "passwd", "password", "secret", "sign") {
		return prefix + rawKey + "=<SECRET>"
	}
	if containsAny(key, "time", "timestamp", "_dc", "ts", "nonce") {
		return prefix + rawKey + "=<TIMESTAMP>"
	}
	if len(value) >= 24 {
		return prefix + rawKey + "=<TOKEN>"
	}
	return prefix + rawKey + "=" + value
}

func replaceLongSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if pathSegmentRe.MatchString(seg) {
			segments[i] = "<TOKEN>"
		}
	}
	return strings.Join(segments, "/")
}

// normalizeScore maps textual severities via the label table, treats
// numerics above 1 as percentages, and clamps to [0,1]. Anything
// unparseable falls back to 0.3.
func normalizeScore(raw any) float64 {
	if raw == nil {
		return defaultScore
	}
	if s, ok := raw.(string); ok {
		candidate := strings.ToLower(strings.TrimSpace(s))
		if v, ok := severityMap[candidate]; ok {
			return v
		}
		f, ok := models.ToFloat(candidate)
		if !ok {
			return defaultScore
		}
		raw = f
	}
	value, ok := models.ToFloat(raw)
	if !ok {
		return defaultScore
	}
	if value > 1.0 {
		value = min(value/100.0, 1.0)
	}
	return max(0.0, min(value, 1.0))
}

func isExternalIP(ipText string) bool {
	addr, err := netip.ParseAddr(ipText)
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast())
}

func isSensitiveAsset(alert models.RawAlert) bool {
	candidates := []any{
		alert.First("asset.criticality", "destination.asset_tier", "asset.tier"),
		alert.First("destination.tags", "asset.tags"),
	}
	for _, v := range candidates {
		text := strings.ToLower(fmt.Sprintf("%v", v))
		if containsAny(text, "critical", "prod", "payment", "core") {
			return true
		}
	}
	return false
}

func deriveRawID(alert models.RawAlert, ts time.Time) string {
	if direct := alert.First("event.id", "id", "alert_id", "_id"); direct != nil {
		if s := models.Stringify(direct); s != "" {
			return s
		}
	}
	// fmt renders maps in sorted key order, so the digest is stable.
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%v", ts.Format(time.RFC3339Nano), map[string]any(alert)))
	return hex.EncodeToString(sum[:])
}

func stringOrDefault(v any, def string) string {
	if v == nil {
		return def
	}
	text := strings.TrimSpace(models.Stringify(v))
	if text == "" {
		return def
	}
	return text
}

func containsAny(text string, tokens ...string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
