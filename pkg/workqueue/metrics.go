package workqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "workqueue",
		Name:      "tasks_processed_total",
		Help:      "Number of tasks processed to completion across all worker pools.",
	})

	tasksPushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "workqueue",
		Name:      "tasks_pushed_total",
		Help:      "Number of tasks enqueued via PushTask from inside a running task.",
	})

	stealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "workqueue",
		Name:      "steals_total",
		Help:      "Number of tasks a worker picked up from another worker's queue.",
	})

	workerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clinit",
		Subsystem: "workqueue",
		Name:      "worker_panics_total",
		Help:      "Number of task panics recovered from inside a worker goroutine.",
	})
)
