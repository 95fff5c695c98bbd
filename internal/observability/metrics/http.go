package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal     *prometheus.CounterVec
	chatModeRequestsTotal *prometheus.CounterVec
	chatDuration          *prometheus.HistogramVec
	chatRetrievedPassages *prometheus.HistogramVec
	chatNoContextTotal    *prometheus.CounterVec
	comparisonTotal       *prometheus.CounterVec
	rerankFallbackTotal   *prometheus.CounterVec
	retrievalDegradeTotal *prometheus.CounterVec
	urlBackfillTotal      *prometheus.CounterVec
	streamOutcomeTotal    *prometheus.CounterVec
	streamFramesTotal     *prometheus.CounterVec
	persistFailedTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veddy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "veddy",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total completed chat requests by channel.",
		},
		[]string{"service", "channel"},
	)
	chatModeRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "mode_requests_total",
			Help:      "Total completed chat requests by generation mode.",
		},
		[]string{"service", "channel", "mode"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat request duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"service", "channel"},
	)
	chatRetrievedPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "retrieved_passages",
			Help:      "Distribution of passages in the final context per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "channel"},
	)
	chatNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "no_context_total",
			Help:      "Total chat requests answered without retrieved passages.",
		},
		[]string{"service", "channel"},
	)
	comparisonTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "comparison_detected_total",
			Help:      "Total detected comparison questions by detection method.",
		},
		[]string{"service", "method"},
	)
	rerankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "retrieval",
			Name:      "rerank_fallback_total",
			Help:      "Total requests where reranking failed and retrieval order was kept.",
		},
		[]string{"service"},
	)
	retrievalDegradeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total requests answered without context after a retrieval failure.",
		},
		[]string{"service"},
	)
	urlBackfillTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "retrieval",
			Name:      "url_backfill_total",
			Help:      "Total source URL resolutions by tier.",
		},
		[]string{"service", "tier"},
	)
	streamOutcomeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "stream",
			Name:      "outcome_total",
			Help:      "Total generation streams by terminal outcome.",
		},
		[]string{"service", "channel", "outcome"},
	)
	streamFramesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total delivery frames sent by channel.",
		},
		[]string{"service", "channel"},
	)
	persistFailedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veddy",
			Subsystem: "chat",
			Name:      "persist_failed_total",
			Help:      "Total answered requests whose history write failed.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatRequestsTotal,
		chatModeRequestsTotal,
		chatDuration,
		chatRetrievedPassages,
		chatNoContextTotal,
		comparisonTotal,
		rerankFallbackTotal,
		retrievalDegradeTotal,
		urlBackfillTotal,
		streamOutcomeTotal,
		streamFramesTotal,
		persistFailedTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		chatRequestsTotal:     chatRequestsTotal,
		chatModeRequestsTotal: chatModeRequestsTotal,
		chatDuration:          chatDuration,
		chatRetrievedPassages: chatRetrievedPassages,
		chatNoContextTotal:    chatNoContextTotal,
		comparisonTotal:       comparisonTotal,
		rerankFallbackTotal:   rerankFallbackTotal,
		retrievalDegradeTotal: retrievalDegradeTotal,
		urlBackfillTotal:      urlBackfillTotal,
		streamOutcomeTotal:    streamOutcomeTotal,
		streamFramesTotal:     streamFramesTotal,
		persistFailedTotal:    persistFailedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordChatObservation(service, channel, mode string, passageCount int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(service, channel).Inc()
	m.chatModeRequestsTotal.WithLabelValues(service, channel, mode).Inc()
	m.chatDuration.WithLabelValues(service, channel).Observe(duration.Seconds())
	m.chatRetrievedPassages.WithLabelValues(service, channel).Observe(float64(passageCount))

	if passageCount == 0 {
		m.chatNoContextTotal.WithLabelValues(service, channel).Inc()
	}
}

func (m *HTTPServerMetrics) RecordComparisonDetected(service, method string) {
	if method == "" {
		method = "unknown"
	}
	m.comparisonTotal.WithLabelValues(service, method).Inc()
}

func (m *HTTPServerMetrics) RecordRerankFallback(service string) {
	m.rerankFallbackTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordRetrievalDegraded(service string) {
	m.retrievalDegradeTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordURLBackfill(service string, tiers [3]int) {
	names := [3]string{"direct", "metadata", "document"}
	for i, count := range tiers {
		if count <= 0 {
			continue
		}
		m.urlBackfillTotal.WithLabelValues(service, names[i]).Add(float64(count))
	}
}

func (m *HTTPServerMetrics) RecordStreamOutcome(service, channel, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.streamOutcomeTotal.WithLabelValues(service, channel, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordStreamFrames(service, channel string, frames int) {
	if frames <= 0 {
		return
	}
	m.streamFramesTotal.WithLabelValues(service, channel).Add(float64(frames))
}

func (m *HTTPServerMetrics) RecordPersistFailed(service string) {
	m.persistFailedTotal.WithLabelValues(service).Inc()
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
