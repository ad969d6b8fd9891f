package webapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stepUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rar_webapp_transaction_outcomes_total",
	Help: "Outcomes of transaction submissions, including step-up denials.",
}, []string{"outcome"})
