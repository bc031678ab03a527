package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		reportGenerationsTotal,
		reportGenerationSeconds,
		reportWaitTimeoutsTotal,
		reportNotificationsTotal,
	)
}

var (
	reportGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_generations_total",
			Help: "Report generation jobs processed, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'retried'
	)

	reportGenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_generation_seconds",
			Help:    "Wall time of a report generation, LLM call included.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	reportWaitTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "report_wait_timeouts_total",
			Help: "generate-report requests that gave up waiting on a running job.",
		},
	)

	reportNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_notifications_total",
			Help: "Alert service notifications about finished reports, labeled by result.",
		},
		[]string{"result"}, // 'sent', 'failed', 'skipped'
	)
)

func IncGeneration(status string) {
	reportGenerationsTotal.WithLabelValues(status).Inc()
}

func ObserveGeneration(d time.Duration) {
	reportGenerationSeconds.Observe(d.Seconds())
}

func IncWaitTimeout() {
	reportWaitTimeoutsTotal.Inc()
}

func IncNotification(result string) {
	reportNotificationsTotal.WithLabelValues(result).Inc()
}
