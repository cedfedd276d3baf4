package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_tasks_claimed_total",
		Help: "Tasks claimed by workers by type",
	}, []string{"task_type"})

	// tasksCompleted counts terminal outcomes: success, permanent, exhausted.
	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_tasks_completed_total",
		Help: "Tasks reaching a terminal state by type and outcome",
	}, []string{"task_type", "outcome"})

	tasksRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_tasks_retried_total",
		Help: "Tasks returned to pending for another attempt by type",
	}, []string{"task_type"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskqueue_task_duration_seconds",
		Help:    "Handler execution time by type",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"task_type"})
)
