package fiscal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_attempts_total",
		Help: "Fiscalization attempts by outcome.",
	}, []string{"outcome"})

	retriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_retries_scheduled_total",
		Help: "Retry attempts scheduled with backoff.",
	})

	permanentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_permanent_failures_total",
		Help: "Queue entries that exhausted the retry budget.",
	})

	sweeperRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiscal_sweeper_requeued_total",
		Help: "Failed entries re-enqueued by the periodic sweeper.",
	})
)
