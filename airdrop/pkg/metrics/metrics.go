package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_rpc_requests_total",
			Help: "Total number of Solana RPC requests",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airdrop_rpc_request_duration_seconds",
			Help:    "Duration of Solana RPC requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"method"},
	)

	ExternalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_external_requests_total",
			Help: "Total number of requests to the eligibility API and price feeds",
		},
		[]string{"service", "status"},
	)

	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airdrop_external_request_duration_seconds",
			Help:    "Duration of requests to the eligibility API and price feeds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"service"},
	)

	ClaimDataTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_claim_data_total",
			Help: "Claim data computations by on-chain claim state and outcome",
		},
		[]string{"state", "outcome"},
	)

	ClaimSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_claim_submissions_total",
			Help: "Claim submissions by outcome",
		},
		[]string{"outcome"},
	)

	DirectoryRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_directory_refresh_total",
			Help: "Total number of distributor directory refreshes",
		},
		[]string{"status"},
	)

	DirectoryRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airdrop_directory_refresh_duration_seconds",
			Help:    "Duration of distributor directory refreshes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		},
	)

	DirectoryDistributors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airdrop_directory_distributors",
			Help: "Number of distributors in the directory",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordRPC records one Solana RPC call.
func RecordRPC(method string, duration time.Duration, err error) {
	RPCRequestsTotal.WithLabelValues(method, statusLabel(err)).Inc()
	RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordExternal records one call to an off-chain HTTP service.
func RecordExternal(service string, duration time.Duration, status string) {
	ExternalRequestsTotal.WithLabelValues(service, status).Inc()
	ExternalRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCacheLookup matches cache.Config.OnLookup.
func RecordCacheLookup(name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(name, result).Inc()
}
