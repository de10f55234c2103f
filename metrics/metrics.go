// Package metrics wires the devnet's Prometheus exposition: transaction,
// block, RPC and fork-upstream counters plus duration histograms, built on
// prometheus/client_golang.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry owns every metric devnetd exposes. A process constructs exactly
// one at startup; every test constructs its own isolated Registry against
// a private prometheus.Registerer rather than reaching for prometheus's
// default global registry.
type Registry struct {
	reg *prometheus.Registry

	TransactionCount prometheus.Counter
	BlockCount       prometheus.Counter
	RPCCallCount     *prometheus.CounterVec
	UpstreamCalls    *prometheus.CounterVec

	BlockCreationDuration prometheus.Histogram
	RPCCallDuration       *prometheus.HistogramVec
	UpstreamCallDuration  *prometheus.HistogramVec
}

// New constructs a Registry backed by its own prometheus.Registry, so
// multiple Devnet instances can coexist in one test process without
// colliding on the default global registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		TransactionCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "starknet_transaction_count",
			Help: "Total number of transactions accepted into a block.",
		}),
		BlockCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "starknet_block_count",
			Help: "Total number of blocks sealed.",
		}),
		RPCCallCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_call_count",
			Help: "Total number of JSON-RPC calls handled, by method and status.",
		}, []string{"method", "status"}),
		UpstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "starknet_upstream_call_count",
			Help: "Total number of fork-upstream calls, by method and status.",
		}, []string{"method", "status"}),
		BlockCreationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "starknet_block_creation_duration_seconds",
			Help:    "Time spent sealing a block.",
			Buckets: prometheus.DefBuckets,
		}),
		RPCCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpc_call_duration_seconds",
			Help:    "JSON-RPC call latency, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		UpstreamCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starknet_upstream_call_duration_seconds",
			Help:    "Fork-upstream call latency, by method and status.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),
	}
}

// Gatherer exposes the underlying prometheus.Registry for the HTTP
// /metrics handler without leaking the concrete type to every caller.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveRPCCall records one JSON-RPC call's outcome and latency.
func (r *Registry) ObserveRPCCall(method, status string, d time.Duration) {
	r.RPCCallCount.WithLabelValues(method, status).Inc()
	r.RPCCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveUpstreamCall satisfies forkbridge.Metrics.
func (r *Registry) ObserveUpstreamCall(method, status string, d time.Duration) {
	r.UpstreamCalls.WithLabelValues(method, status).Inc()
	r.UpstreamCallDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

// ObserveBlockSealed records one sealed block's production time and bumps
// the running block/transaction counters.
func (r *Registry) ObserveBlockSealed(txCount int, d time.Duration) {
	r.BlockCount.Inc()
	r.TransactionCount.Add(float64(txCount))
	r.BlockCreationDuration.Observe(d.Seconds())
}
