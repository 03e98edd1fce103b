package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eigenswarm_trades_total",
		Help: "Trade attempts by outcome.",
	}, []string{"outcome", "direction"})

	revertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eigenswarm_trade_reverts_total",
		Help: "On-chain and simulated reverts across all eigens.",
	})
)
