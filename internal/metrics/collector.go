package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector manages Prometheus metrics for the gateway pipeline.
type Collector struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram

	auditSubmitted  prometheus.Counter
	auditDropped    prometheus.Counter
	fraudVerdicts   *prometheus.CounterVec
	encryptedBodies prometheus.Counter
}

// NewCollector registers the gateway metrics on reg. Passing a fresh registry
// keeps tests isolated; the process normally passes prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		stageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pipeline_stage_total",
			Help: "Requests observed per pipeline stage",
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pipeline_stage_errors_total",
			Help: "Stage failures, including swallowed side-effect failures",
		}, []string{"stage"}),
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatch_total",
			Help: "Upstream dispatches by status class",
		}, []string{"status"}),
		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_dispatch_duration_seconds",
			Help:    "Upstream round-trip time",
			Buckets: prometheus.DefBuckets,
		}),
		auditSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_events_submitted_total",
			Help: "Security events handed to the audit dispatcher",
		}),
		auditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_events_dropped_total",
			Help: "Security events dropped due to backpressure",
		}),
		fraudVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fraud_verdicts_total",
			Help: "Fraud scorer verdicts by recommendation",
		}, []string{"recommendation"}),
		encryptedBodies: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_encrypted_bodies_total",
			Help: "Request bodies rewritten by the encrypt stage",
		}),
	}
}

// ObserveStage records one pass through a pipeline stage.
func (c *Collector) ObserveStage(stage string, duration time.Duration, err error) {
	c.stageTotal.WithLabelValues(stage).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		c.stageErrors.WithLabelValues(stage).Inc()
	}
}

// ObserveDispatch records one upstream round trip.
func (c *Collector) ObserveDispatch(status string, duration time.Duration) {
	c.dispatchTotal.WithLabelValues(status).Inc()
	c.dispatchDuration.Observe(duration.Seconds())
}

// AuditSubmitted counts an event handed to the dispatcher.
func (c *Collector) AuditSubmitted() { c.auditSubmitted.Inc() }

// AuditDropped counts an event dropped by the dispatcher.
func (c *Collector) AuditDropped() { c.auditDropped.Inc() }

// FraudVerdict counts a scorer verdict.
func (c *Collector) FraudVerdict(recommendation string) {
	c.fraudVerdicts.WithLabelValues(recommendation).Inc()
}

// BodyEncrypted counts a rewritten request body.
func (c *Collector) BodyEncrypted() { c.encryptedBodies.Inc() }
