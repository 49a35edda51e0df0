package reward

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reward",
		Name:      "runs_total",
		Help:      "Reward runs by terminal status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reward",
		Name:      "run_duration_seconds",
		Help:      "Time spent ranking, allocating and paying one run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
