package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	batchesTotal         *prometheus.CounterVec
	batchDuration        *prometheus.HistogramVec
	activeBatches        prometheus.Gauge
	imagesGeneratedTotal prometheus.Counter
	degradedStagesTotal  prometheus.Counter
	renderErrorsTotal    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adcanvas_worker_batches_total",
			Help: "Total processed batches by final status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adcanvas_worker_batch_duration_seconds",
			Help:    "End-to-end duration of each batch run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adcanvas_worker_active_batches",
			Help: "Batches currently being rendered.",
		}),
		imagesGeneratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adcanvas_worker_images_generated_total",
			Help: "Total finished renders across all batches.",
		}),
		degradedStagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adcanvas_worker_degraded_stages_total",
			Help: "Total pipeline stages that fell back to a no-op.",
		}),
		renderErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adcanvas_worker_render_errors_total",
			Help: "Total per-image render failures inside batches.",
		}),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.activeBatches,
		m.imagesGeneratedTotal,
		m.degradedStagesTotal,
		m.renderErrorsTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
