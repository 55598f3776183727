package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records pipeline, serving, and monitoring metrics via Prometheus.
type Recorder struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	predictions   *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	driftChecks   *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// Nop creates a recorder backed by a private registry. Used by tests so
// repeated construction never collides on metric names.
func Nop() *Recorder {
	return NewWith(prometheus.NewRegistry())
}

// NewWith creates a recorder registered on the given registry.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadcast_runs_started_total",
				Help: "Total number of pipeline runs started",
			},
			[]string{"trigger"},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadcast_runs_finished_total",
				Help: "Total number of pipeline runs finished",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loadcast_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"stage"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadcast_predictions_total",
				Help: "Total number of prediction requests served",
			},
			[]string{"family", "status"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadcast_alerts_total",
				Help: "Total number of alerts emitted",
			},
			[]string{"severity", "component"},
		),
		driftChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadcast_drift_checks_total",
				Help: "Total number of drift checks by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRunStarted records a pipeline run start.
func (r *Recorder) RecordRunStarted(trigger string) {
	r.runsStarted.WithLabelValues(trigger).Inc()
}

// RecordRunFinished records a pipeline run outcome ("ready" or "error").
func (r *Recorder) RecordRunFinished(outcome string) {
	r.runsFinished.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records a stage duration in seconds.
func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPrediction records a served prediction request.
func (r *Recorder) RecordPrediction(family, status string) {
	r.predictions.WithLabelValues(family, status).Inc()
}

// RecordAlert records an emitted alert.
func (r *Recorder) RecordAlert(severity, component string) {
	r.alerts.WithLabelValues(severity, component).Inc()
}

// RecordDriftCheck records a drift check result ("drift", "ok", or "skipped").
func (r *Recorder) RecordDriftCheck(result string) {
	r.driftChecks.WithLabelValues(result).Inc()
}
