// Package jobmetrics instruments background job runs and queue depth.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used for the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusDropped marks runs that failed with asynq.SkipRetry and will not
	// be attempted again.
	StatusDropped = "dropped"
)

// Metrics holds the collectors for job executions.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	raised   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, falling back to the
// default Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for the named job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and duration and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	t.metrics.runs.WithLabelValues(t.job, Outcome(err)).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome maps a handler result onto the status label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDropped
	default:
		return StatusFailure
	}
}

// AddAlerts counts alerts opened by jobs, by severity.
func (m *Metrics) AddAlerts(severity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if severity == "" {
		severity = "unknown"
	}
	m.raised.WithLabelValues(severity).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diptrack",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job executions by task type and outcome.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "diptrack",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution time by task type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		raised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diptrack",
			Subsystem: "jobs",
			Name:      "alerts_raised_total",
			Help:      "Alerts opened by background jobs by severity.",
		}, []string{"severity"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.raised)
	return m
}
