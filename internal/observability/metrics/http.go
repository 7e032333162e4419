package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answersTotal           *prometheus.CounterVec
	answerRounds           *prometheus.HistogramVec
	answerCitations        *prometheus.HistogramVec
	answerDuration         *prometheus.HistogramVec
	retrievalDegradedTotal *prometheus.CounterVec
	insufficientTotal      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rhub",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "completed_total",
			Help:      "Total completed answers by terminal reason.",
		},
		[]string{"service", "reason"},
	)
	answerRounds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "retrieval_rounds",
			Help:      "Distribution of retrieval rounds per answer.",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"service"},
	)
	answerCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "citations",
			Help:      "Distribution of validated citations per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "End-to-end answer latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retrievalDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "retrieval_degraded_total",
			Help:      "Total answers built while one retrieval scorer was unavailable.",
		},
		[]string{"service"},
	)
	insufficientTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhub",
			Subsystem: "answer",
			Name:      "insufficient_evidence_total",
			Help:      "Total answers that fell back to the insufficient-evidence response.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answersTotal,
		answerRounds,
		answerCitations,
		answerDuration,
		retrievalDegradedTotal,
		insufficientTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		answersTotal:           answersTotal,
		answerRounds:           answerRounds,
		answerCitations:        answerCitations,
		answerDuration:         answerDuration,
		retrievalDegradedTotal: retrievalDegradedTotal,
		insufficientTotal:      insufficientTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordAnswer(service, reason string, rounds, citations int, partial, insufficient bool, duration time.Duration) {
	if reason == "" {
		reason = "unknown"
	}
	m.answersTotal.WithLabelValues(service, reason).Inc()
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())
	if rounds > 0 {
		m.answerRounds.WithLabelValues(service).Observe(float64(rounds))
	}
	m.answerCitations.WithLabelValues(service).Observe(float64(citations))
	if partial {
		m.retrievalDegradedTotal.WithLabelValues(service).Inc()
	}
	if insufficient {
		m.insufficientTotal.WithLabelValues(service).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
