package gemm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	multipliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "te_gemm_multiplies_total",
		Help: "Total number of fused multiply calls by execution path",
	}, []string{"path"})

	multiplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "te_gemm_multiply_duration_seconds",
		Help:    "Wall time of multiply dispatch including enqueue, by path",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	scratchPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "te_gemm_scratch_pool_hits_total",
		Help: "Total number of successful scratch buffer pool retrievals",
	})

	scratchPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "te_gemm_scratch_pool_misses_total",
		Help: "Total number of scratch buffer pool misses (allocations)",
	})

	preconditionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "te_gemm_precondition_failures_total",
		Help: "Total number of calls rejected before any kernel was enqueued",
	}, []string{"condition"})

	heuristicFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "te_gemm_heuristic_failures_total",
		Help: "Total number of heuristic searches that returned zero algorithms",
	})
)
