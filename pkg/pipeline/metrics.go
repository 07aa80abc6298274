package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replygen",
		Name:      "requests_total",
		Help:      "Reply requests by outcome.",
	}, []string{"outcome"})

	agentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "replygen",
		Name:      "agent_duration_seconds",
		Help:      "Per-agent wall time.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"agent"})

	agentFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replygen",
		Name:      "agent_fallbacks_total",
		Help:      "Agent timeouts and errors resolved by the typed fallback.",
	}, []string{"agent"})

	rewritesHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replygen",
		Name:      "rewrites_per_request",
		Help:      "Validation rewrites used per request.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	fallbackModeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "replygen",
		Name:      "retrieval_fallback_mode_total",
		Help:      "Requests generated in retrieval fallback mode.",
	})
)
