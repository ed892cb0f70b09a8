package aggregator

import (
	"math"
	"time"

	"github.com/socrates-soc/socrates/pkg/models"
)

// bucketState accumulates one dimension-keyed window.
type bucketState struct {
	key            string
	sip            string
	dip            string
	proto          string
	ruleName       string
	logType        string
	uriTemplate    string
	windowStart    time.Time
	windowEnd      time.Time
	count          int
	sumSeverity    float64
	sumConfidence  float64
	srcExternal    int
	dstSensitive   int
	representative models.RawAlert
	rawRefIDs      []string
}

func (b *bucketState) add(alert *models.NormalizedAlert, maxRefIDs int) {
	b.count++
	b.sumSeverity += alert.Severity
	b.sumConfidence += alert.Confidence
	if alert.SrcExternal {
		b.srcExternal++
	}
	if alert.DstSensitive {
		b.dstSensitive++
	}
	if alert.Timestamp.Before(b.windowStart) {
		b.windowStart = alert.Timestamp
	}
	if alert.Timestamp.After(b.windowEnd) {
		b.windowEnd = alert.Timestamp
		b.representative = alert.Raw
	}
	if len(b.rawRefIDs) < maxRefIDs {
		b.rawRefIDs = append(b.rawRefIDs, alert.RawID)
	}
}

// Aggregator folds normalized alerts into in-memory buckets and flushes
// them once they have been idle for a full window. Not safe for concurrent
// use; the stage loop is single-threaded.
type Aggregator struct {
	window    time.Duration
	maxRefIDs int
	buckets   map[string]*bucketState
}

// NewAggregator creates an aggregator with the given window and per-bucket
// reference-ID cap.
func NewAggregator(window time.Duration, maxRefIDs int) *Aggregator {
	return &Aggregator{
		window:    window,
		maxRefIDs: maxRefIDs,
		buckets:   make(map[string]*bucketState),
	}
}

// Add folds one alert into its bucket, opening the bucket on first sight.
func (a *Aggregator) Add(alert *models.NormalizedAlert) {
	key := alert.BucketKey()
	state, ok := a.buckets[key]
	if !ok {
		state = &bucketState{
			key:            key,
			sip:            alert.SIP,
			dip:            alert.DIP,
			proto:          alert.Proto,
			ruleName:       alert.RuleName,
			logType:        alert.LogType,
			uriTemplate:    alert.URITemplate,
			windowStart:    alert.Timestamp,
			windowEnd:      alert.Timestamp,
			representative: alert.Raw,
		}
		a.buckets[key] = state
	}
	state.add(alert, a.maxRefIDs)
}

// Len returns the number of open buckets.
func (a *Aggregator) Len() int {
	return len(a.buckets)
}

// FlushExpired removes and returns every bucket that has been idle for at
// least the window, measured from its last event.
func (a *Aggregator) FlushExpired(now time.Time) []*models.BucketSnapshot {
	var snapshots []*models.BucketSnapshot
	for key, state := range a.buckets {
		if now.Sub(state.windowEnd) >= a.window {
			snapshots = append(snapshots, toSnapshot(state))
			delete(a.buckets, key)
		}
	}
	return snapshots
}

// ForceFlush drains every bucket regardless of age. Used at shutdown.
func (a *Aggregator) ForceFlush() []*models.BucketSnapshot {
	var snapshots []*models.BucketSnapshot
	for key, state := range a.buckets {
		snapshots = append(snapshots, toSnapshot(state))
		delete(a.buckets, key)
	}
	return snapshots
}

func toSnapshot(state *bucketState) *models.BucketSnapshot {
	n := float64(max(state.count, 1))
	return &models.BucketSnapshot{
		BucketKey:         state.key,
		SIP:               state.sip,
		DIP:               state.dip,
		Proto:             state.proto,
		RuleName:          state.ruleName,
		LogType:           state.logType,
		URITemplate:       state.uriTemplate,
		WindowStart:       state.windowStart,
		WindowEnd:         state.windowEnd,
		Count:             state.count,
		Representative:    state.representative,
		RawRefIDs:         state.rawRefIDs,
		AvgSeverity:       state.sumSeverity / n,
		AvgConfidence:     state.sumConfidence / n,
		SrcExternalRatio:  float64(state.srcExternal) / n,
		DstSensitiveRatio: float64(state.dstSensitive) / n,
	}
}

// NormalizeFrequency maps a window count onto [0,1]. Log scale keeps large
// bursts bounded without flattening small differences; saturates at 50.
func NormalizeFrequency(count int) float64 {
	return max(0.0, min(math.Log1p(float64(count))/math.Log(51), 1.0))
}
