package models

import (
	"fmt"
	"strconv"
	"time"
)

// Stringify renders a dynamic value the way it would appear in a log line.
// JSON numbers arrive as float64; integral values render without a decimal
// point so IDs and ports survive the round trip.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ToFloat coerces a dynamic value to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ParseTimestamp interprets a dynamic timestamp value: RFC 3339 strings
// (with or without fractional seconds), epoch seconds or milliseconds as
// numbers. Unparseable values fall back to now.
func ParseTimestamp(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case float64:
		return epochToTime(t)
	case int:
		return epochToTime(float64(t))
	case int64:
		return epochToTime(float64(t))
	case string:
		if t == "" {
			return now.UTC()
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return epochToTime(f)
		}
		return now.UTC()
	default:
		return now.UTC()
	}
}

// epochToTime treats values above 1e12 as milliseconds.
func epochToTime(f float64) time.Time {
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
