package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eigenswarm_payments_verified_total",
	Help: "Newly verified payments by scheme.",
}, []string{"scheme"})
