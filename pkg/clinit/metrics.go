package clinit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fixpointIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clinit",
		Subsystem: "cfg",
		Name:      "fixpoint_iterations",
		Help:      "Number of worklist iterations spent reaching a method's fixpoint.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1000},
	})

	fixpointCapHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "cfg",
		Name:      "fixpoint_cap_hits_total",
		Help:      "Number of method analyses that hit the fixpoint iteration safety cap without converging.",
	})

	methodsAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "cfg",
		Name:      "methods_analyzed_total",
		Help:      "Number of methods whose CFG reached (or was forced to stop at) a fixpoint.",
	})
)
