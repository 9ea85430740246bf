// Package metrics exposes the gateway's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agentgate-dev/agentgate/pkg/gateway/usage"
)

var (
	// TurnsTotal counts completed turns by mode (run/stream) and outcome
	// (ok/error).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentgate_turns_total",
		Help: "Completed conversation turns.",
	}, []string{"mode", "outcome"})

	// DomainEventsTotal counts emitted domain events by type.
	DomainEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentgate_domain_events_total",
		Help: "Domain events emitted to streaming clients.",
	}, []string{"type"})

	// TokensTotal accumulates final per-turn token usage by counter kind.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentgate_tokens_total",
		Help: "Token usage accumulated from completed turns.",
	}, []string{"kind"})
)

// ObserveUsage adds one turn's final usage totals.
func ObserveUsage(s usage.Stats) {
	TokensTotal.WithLabelValues("input").Add(float64(s.InputTokens))
	TokensTotal.WithLabelValues("output").Add(float64(s.OutputTokens))
	TokensTotal.WithLabelValues("cache_read").Add(float64(s.CacheReadTokens))
	TokensTotal.WithLabelValues("cache_creation").Add(float64(s.CacheCreationTokens))
}
