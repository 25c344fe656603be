package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器, backed by a dedicated Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	predictions     *prometheus.CounterVec
	predictionErrs  *prometheus.CounterVec
	probability     prometheus.Histogram
	predictLatency  prometheus.Histogram
	cacheHits       prometheus.Counter
	reloads         *prometheus.CounterVec
	modelInfo       *prometheus.GaugeVec
	activeSessions  prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	modelQuality    *prometheus.GaugeVec

	startTime time.Time
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_predictions_total",
			Help: "Predictions served, by decision.",
		}, []string{"decision"}),
		predictionErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_prediction_errors_total",
			Help: "Rejected or failed predictions, by error kind.",
		}, []string{"kind"}),
		probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_approval_probability",
			Help:    "Approval probability (0-100) of served predictions.",
			Buckets: prometheus.LinearBuckets(10, 10, 9),
		}),
		predictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_prediction_duration_seconds",
			Help:    "Time spent encoding and classifying one submission.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loan_prediction_cache_hits_total",
			Help: "Predictions answered from the result cache.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_artifact_reloads_total",
			Help: "Artifact load attempts, by result.",
		}, []string{"result"}),
		modelInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_model_info",
			Help: "Set to 1 for the model version currently serving.",
		}, []string{"version", "type"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loan_active_sessions",
			Help: "Open interactive sessions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		modelQuality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_model_score",
			Help: "Held-out evaluation scores recorded with the serving model.",
		}, []string{"metric"}),
		startTime: time.Now(),
	}

	m.registry.MustRegister(
		m.predictions, m.predictionErrs, m.probability, m.predictLatency, m.cacheHits,
		m.reloads, m.modelInfo, m.activeSessions, m.httpRequests, m.httpLatency,
		m.modelQuality,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPrediction 记录一次成功预测
func (m *Metrics) RecordPrediction(approved bool, probability float64, elapsed time.Duration, cached bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.predictions.WithLabelValues(decision).Inc()
	m.probability.Observe(probability)
	m.predictLatency.Observe(elapsed.Seconds())
	if cached {
		m.cacheHits.Inc()
	}
}

// RecordError counts a failed submission; kind is one of "validation",
// "unencodable", "invocation" or "artifact".
func (m *Metrics) RecordError(kind string) {
	m.predictionErrs.WithLabelValues(kind).Inc()
}

// RecordReload counts an artifact load and, on success, marks the serving
// version and publishes the scores stored with it. A failed load leaves both
// untouched.
func (m *Metrics) RecordReload(version, modelType string, scores map[string]float64, err error) {
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(version, modelType).Set(1)
	m.modelQuality.Reset()
	for name, v := range scores {
		m.modelQuality.WithLabelValues(name).Set(v)
	}
}

func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// GetUptime 获取运行时间
func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.startTime)
}
