// Package metrics defines the Prometheus instruments shared by the
// pipeline stages. All instruments are registered on the default registry
// and exposed by the ops server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReceiverPublished counts raw alerts pushed onto the alerts queue.
	ReceiverPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socrates_receiver_published_total",
		Help: "Raw alerts published to the alerts queue.",
	})

	// StageConsumed counts payloads handled per stage.
	StageConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_stage_consumed_total",
		Help: "Queue payloads consumed, by stage.",
	}, []string{"stage"})

	// StageRouted counts payloads routed to an output queue per stage.
	StageRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_stage_routed_total",
		Help: "Payloads routed to an output queue, by stage and queue.",
	}, []string{"stage", "queue"})

	// StageDropped counts payloads dropped after processing failures.
	StageDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_stage_dropped_total",
		Help: "Payloads dropped after unrecoverable per-message failures, by stage.",
	}, []string{"stage"})

	// BucketsFlushed counts aggregation buckets converted to snapshots.
	BucketsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socrates_aggregator_buckets_flushed_total",
		Help: "Aggregation buckets flushed to snapshots.",
	})

	// LLMDegraded counts LLM calls that fell back to deterministic output.
	LLMDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socrates_llm_degraded_total",
		Help: "LLM calls whose output was replaced by a deterministic fallback.",
	})

	// ToolInvocations counts tool executions by tool name and outcome.
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_tool_invocations_total",
		Help: "Investigation tool executions, by tool and outcome.",
	}, []string{"tool", "outcome"})
)
