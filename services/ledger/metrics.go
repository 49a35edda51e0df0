package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pointsDistributed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "reward",
	Name:      "points_distributed_total",
	Help:      "Reward points credited to user balances.",
})
