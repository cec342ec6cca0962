package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the available internal metrics
type Metrics struct {
	// APIResponseDurationsMilliseconds is the number of milliseconds it takes to
	// complete API responses.
	//
	// Labels: path (request path), method (request HTTP method),
	// status_code (response HTTP status code)
	APIResponseDurationsMilliseconds *prometheus.HistogramVec

	// APIHandlerPanicsTotal is the number of times HTTP request handlers have paniced.
	//
	// Labels: path(request path), method( request HTTP method)
	APIHandlerPanicsTotal *prometheus.CounterVec

	// JobsSubmittedTotal is the number of jobs which are submitted.
	//
	// Labels: job_type (jobs.JobStartRequest.Type field)
	JobsSubmittedTotal *prometheus.CounterVec

	// JobsRunDurationsMilliseconds is the number of milliseconds jobs run for.
	//
	// Labels: job_type (jobs.JobStartRequest.Type field), successful (0 = fail, 1 = success)
	JobsRunDurationsMilliseconds *prometheus.HistogramVec

	// JobPanicsTotal is the number of jobs which panicked.
	//
	// Labels: job_type (jobs.JobStartRequest.Type field)
	JobPanicsTotal *prometheus.CounterVec

	// HostingOutcomesTotal counts GitHub Pages outcomes of publishes.
	//
	// Labels: outcome (publish.HostingOutcome)
	HostingOutcomesTotal *prometheus.CounterVec

	// PipelineFailuresTotal counts pipeline runs which were abandoned.
	//
	// Labels: stage (pipeline step which failed)
	PipelineFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics struct with all the Prometheus metrics recorders
// initialized and registered with reg
func NewMetrics(reg prometheus.Registerer) Metrics {
	metrics := Metrics{
		APIResponseDurationsMilliseconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "app_builder",
			Subsystem: "api",
			Name:      "response_durations_milliseconds",
			Help:      "Time, in milliseconds, it took to respond to API requests",
		}, []string{"path", "method", "status_code"}),
		APIHandlerPanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "app_builder",
			Subsystem: "api",
			Name:      "handler_panics_total",
			Help:      "Total number of HTTP handlers which have panicked while processing a request",
		}, []string{"path", "method"}),
		JobsSubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "app_builder",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total number of jobs submitted",
		}, []string{"job_type"}),
		JobsRunDurationsMilliseconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "app_builder",
			Subsystem: "jobs",
			Name:      "run_durations_milliseconds",
			Help:      "Duration, in milliseconds, of jobs",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
		}, []string{"job_type", "successful"}),
		JobPanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "app_builder",
			Subsystem: "jobs",
			Name:      "panics_total",
			Help:      "Total number of jobs which panicked",
		}, []string{"job_type"}),
		HostingOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "app_builder",
			Subsystem: "publish",
			Name:      "hosting_outcomes_total",
			Help:      "Total number of publishes by GitHub Pages outcome",
		}, []string{"outcome"}),
		PipelineFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "app_builder",
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Total number of abandoned pipeline runs by failed stage",
		}, []string{"stage"}),
	}

	reg.MustRegister(metrics.APIResponseDurationsMilliseconds)
	reg.MustRegister(metrics.APIHandlerPanicsTotal)
	reg.MustRegister(metrics.JobsSubmittedTotal)
	reg.MustRegister(metrics.JobsRunDurationsMilliseconds)
	reg.MustRegister(metrics.JobPanicsTotal)
	reg.MustRegister(metrics.HostingOutcomesTotal)
	reg.MustRegister(metrics.PipelineFailuresTotal)

	return metrics
}

// StartTimer starts a Timer. Calling .Finish() on the returned timer records the
// time elapsed in milliseconds.
func (m Metrics) StartTimer() Timer {
	return Timer{
		startTime: time.Now(),
	}
}
