package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records execution metadata for the reconciliation jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	records  *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
// A nil registerer yields a no-op instance, which keeps tests and one-shot
// invocations from needing a registry.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "servigo",
		Name:      "job_duration_seconds",
		Help:      "Duration of reconciliation jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "job_success",
		Help:      "Successful reconciliation job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "job_failure",
		Help:      "Failed reconciliation job executions.",
	}, []string{"job"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "job_records_processed",
		Help:      "Engagements or reminders acted on per sweep, by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, success, failure, records)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		records:  records,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddRecords counts records a sweep acted on, split by outcome
// ("released", "skipped", "failed", ...).
func (c *CronJobMetrics) AddRecords(job, outcome string, n int) {
	if c == nil || c.records == nil || n <= 0 {
		return
	}
	c.records.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Add(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
