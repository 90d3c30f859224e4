// Package metrics exposes Prometheus counters and histograms for the turn
// pipeline: turns processed, per-turn latency, events fired, skill checks
// rolled, and NPC reactor activity. Grounded on the teacher's metrics shape
// (package-level collectors plus Record* helper functions, one registry
// serving /metrics via promhttp).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "keeper"

var (
	// TurnsTotal counts completed turns by outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns handled by the orchestrator",
		},
		[]string{"decision", "status"}, // decision: none, fire, suspend, resolve_first; status: ok, error
	)

	// TurnDuration is a histogram of end-to-end turn latency.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Histogram of turn processing duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"decision"},
	)

	// EventsFiredTotal counts catalog events that drove a turn, by trigger
	// decision (fire, suspend or resolve_first).
	EventsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fired_total",
			Help:      "Total number of map events that drove a turn",
		},
		[]string{"decision"},
	)

	// SkillChecksTotal counts skill check resolutions by outcome.
	SkillChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_checks_total",
			Help:      "Total number of skill checks resolved",
		},
		[]string{"skill_id", "success"},
	)

	// NPCReactionsTotal counts reactor decisions by outcome, including skips.
	NPCReactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "npc_reactions_total",
			Help:      "Total number of NPC reactor outcomes",
		},
		[]string{"outcome"}, // outcome: reacted, skipped_oracle_error, skipped_invalid_response
	)

	// OracleCallDuration is a histogram of oracle (LLM) call latency.
	OracleCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Duration of Oracle.Generate calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"stage"}, // stage: intent_parse, trigger_soft_fallback, npc_reaction
	)

	allCollectors = []prometheus.Collector{
		TurnsTotal,
		TurnDuration,
		EventsFiredTotal,
		SkillChecksTotal,
		NPCReactionsTotal,
		OracleCallDuration,
	}
)

// RecordTurn records one completed turn.
func RecordTurn(decision, status string, durationSeconds float64) {
	TurnsTotal.WithLabelValues(decision, status).Inc()
	TurnDuration.WithLabelValues(decision).Observe(durationSeconds)
}

// RecordEventFired records a map event driving a turn.
func RecordEventFired(decision string) {
	EventsFiredTotal.WithLabelValues(decision).Inc()
}

// RecordSkillCheck records one skill check resolution.
func RecordSkillCheck(skillID string, success bool) {
	SkillChecksTotal.WithLabelValues(skillID, successLabel(success)).Inc()
}

// RecordNPCReaction records one reactor-loop outcome for a single NPC.
func RecordNPCReaction(outcome string) {
	NPCReactionsTotal.WithLabelValues(outcome).Inc()
}

// RecordOracleCall records the latency of one Oracle.Generate call.
func RecordOracleCall(stage string, durationSeconds float64) {
	OracleCallDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// NewRegistry builds a Prometheus registry carrying every keeper collector
// plus standard Go runtime/process collectors, ready to serve at /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allCollectors {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func successLabel(success bool) string {
	if success {
		return "true"
	}
	return "false"
}
