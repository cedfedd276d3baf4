package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts lifecycle runs by result (success, error, skipped).
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_runs_total",
		Help: "Total number of lifecycle runs by result",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifecycle_run_duration_seconds",
		Help:    "Time taken by a lifecycle run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// classifiedDocuments holds the size of each list from the last run.
	classifiedDocuments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifecycle_classified_documents",
		Help: "Documents classified by the last lifecycle run",
	}, []string{"verdict"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_actions_total",
		Help: "Lifecycle actions applied by action and result",
	}, []string{"action", "result"})
)

func recordAction(action string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	actionsTotal.WithLabelValues(action, result).Inc()
}
