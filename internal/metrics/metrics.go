// Package metrics provides Prometheus instrumentation for the guardian core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCRequests counts JSON-RPC attempts by method, endpoint index and result.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_rpc_requests_total",
		Help: "Total JSON-RPC attempts issued by the gateway",
	}, []string{"method", "endpoint", "result"})

	// RPCFailovers counts switches away from the primary endpoint.
	RPCFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_rpc_failovers_total",
		Help: "Total attempts served by a backup RPC endpoint",
	})

	// RPCDuration observes end-to-end gateway operation latency.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guardian_rpc_duration_seconds",
		Help:    "Duration of gateway operations including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// CacheHits counts market cache hits by entry kind (price, dex).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_market_cache_hits_total",
		Help: "Market data cache hits",
	}, []string{"kind"})

	// CacheMisses counts market cache misses by entry kind.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_market_cache_misses_total",
		Help: "Market data cache misses",
	}, []string{"kind"})

	// SourceFetches counts upstream price source calls by source and result.
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_market_source_fetches_total",
		Help: "Price source fetch attempts",
	}, []string{"source", "result"})

	// ConsensusRounds counts completed swarm rounds by decision.
	ConsensusRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_consensus_rounds_total",
		Help: "Completed consensus rounds",
	}, []string{"decision"})

	// ApprovalRate observes the confidence-weighted approval rate per round.
	ApprovalRate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guardian_consensus_approval_rate",
		Help:    "Confidence-weighted approval rate of consensus rounds",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// GuardianCycles counts guardian update cycles by status.
	GuardianCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_cycles_total",
		Help: "Guardian update cycles",
	}, []string{"status"})
)
