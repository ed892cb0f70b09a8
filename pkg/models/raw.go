// Package models defines the payload types that move through the triage
// pipeline: raw alerts, normalized alerts, bucket snapshots, aggregated
// alerts, match decisions, and investigation verdicts.
package models

import "strings"

// RawAlert is a schemaless alert document as returned by the search index.
// Depth and field shape are unknown; access goes through dotted-path lookups
// with fallbacks.
type RawAlert map[string]any

// Lookup resolves a dotted path against the alert. A literal dotted key at
// the top level wins over nested traversal.
func (a RawAlert) Lookup(path string) (any, bool) {
	if v, ok := a[path]; ok {
		return v, true
	}
	var current any = map[string]any(a)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// First returns the first non-empty value among the given dotted paths.
func (a RawAlert) First(paths ...string) any {
	for _, path := range paths {
		if v, ok := a.Lookup(path); ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

// FirstString returns the first non-empty value among the given paths as a
// trimmed string, or def when none is present.
func (a RawAlert) FirstString(def string, paths ...string) string {
	v := a.First(paths...)
	if v == nil {
		return def
	}
	s := strings.TrimSpace(Stringify(v))
	if s == "" {
		return def
	}
	return s
}
