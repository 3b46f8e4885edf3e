package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher loop activity.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dlq       prometheus.Counter
	backlog   prometheus.Gauge
}

// NewOutboxMetrics registers publisher metrics. Nil registerer yields a no-op.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "outbox_events_published",
		Help:      "Outbox events successfully published, by event type.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "outbox_publish_failures",
		Help:      "Outbox publish attempts that failed, by event type.",
	}, []string{"event_type"})
	dlq := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "servigo",
		Name:      "outbox_events_dead_lettered",
		Help:      "Outbox events moved to the dead letter table.",
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "servigo",
		Name:      "outbox_backlog",
		Help:      "Unpublished outbox rows observed on the last poll.",
	})
	reg.MustRegister(published, failed, dlq, backlog)
	return &OutboxMetrics{
		published: published,
		failed:    failed,
		dlq:       dlq,
		backlog:   backlog,
	}
}

func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (o *OutboxMetrics) IncDeadLettered() {
	if o == nil || o.dlq == nil {
		return
	}
	o.dlq.Inc()
}

func (o *OutboxMetrics) SetBacklog(n int) {
	if o == nil || o.backlog == nil {
		return
	}
	o.backlog.Set(float64(n))
}
