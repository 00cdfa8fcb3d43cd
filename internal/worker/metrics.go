package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	pipelineOutputsTotal *prometheus.CounterVec
	stagesTotal          *prometheus.CounterVec
	webhookFailuresTotal *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	worker := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "pixeltools", Subsystem: "worker", Name: name, Help: help}
	}
	usage := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "pixeltools", Subsystem: "usage", Name: name, Help: help}
	}

	return &metrics{
		registry: registry,
		jobsTotal: factory.NewCounterVec(
			worker("jobs_total", "Finished jobs by source type and final status."),
			[]string{"source_type", "status"},
		),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixeltools", Subsystem: "worker", Name: "job_duration_seconds",
			Help:    "Wall time from dequeue to final status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixeltools", Subsystem: "worker", Name: "active_jobs",
			Help: "Jobs currently holding a processing slot.",
		}),
		pipelineOutputsTotal: factory.NewCounterVec(
			worker("outputs_total", "Encoded variants written, by MIME type."),
			[]string{"mime"},
		),
		stagesTotal: factory.NewCounterVec(
			worker("stages_total", "Completed engine stages by operation, including encode."),
			[]string{"operation"},
		),
		webhookFailuresTotal: factory.NewCounterVec(
			worker("webhook_failures_total", "Webhook deliveries that failed after every attempt."),
			[]string{"event"},
		),
		pixelsProcessedTotal: factory.NewCounter(usage("pixels_processed_total", "Output pixels produced by successful jobs.")),
		bytesSavedTotal:      factory.NewCounter(usage("bytes_saved_total", "Bytes saved versus the source across successful jobs.")),
		computeTimeMSTotal:   factory.NewCounter(usage("compute_time_ms_total", "Compute milliseconds spent on successful jobs.")),
	}
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
