package metrics

import (
	"net/http"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsManager holds the service's Prometheus collectors.
type MetricsManager struct {
	Registry            *prometheus.Registry
	ListingsCreated     prometheus.Counter
	PostingOutcomes     *prometheus.CounterVec
	AdapterLatency      *prometheus.HistogramVec
	PostingsInFlight    prometheus.Gauge
	AbandonedCalls      *prometheus.GaugeVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetricsManager(namespace string) *MetricsManager {
	registry := prometheus.NewRegistry()

	m := &MetricsManager{
		Registry: registry,
		ListingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_created_total",
			Help:      "Total number of listings created.",
		}),
		PostingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketplace_postings_total",
			Help:      "Marketplace posting outcomes by marketplace and status.",
		}, []string{"marketplace", "status"}),
		AdapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "marketplace_post_duration_seconds",
			Help:      "Latency of marketplace adapter calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"marketplace"}),
		PostingsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "marketplace_postings_in_flight",
			Help:      "Marketplace adapter calls currently running.",
		}),
		AbandonedCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "marketplace_calls_abandoned",
			Help:      "Adapter calls past their timeout that have not returned yet.",
		}, []string{"marketplace"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	registry.MustRegister(
		m.ListingsCreated,
		m.PostingOutcomes,
		m.AdapterLatency,
		m.PostingsInFlight,
		m.AbandonedCalls,
		m.HTTPRequestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *MetricsManager) ListingCreated() { m.ListingsCreated.Inc() }

func (m *MetricsManager) PostingStarted() { m.PostingsInFlight.Inc() }

func (m *MetricsManager) PostingFinished(marketplace, status string, elapsed time.Duration) {
	m.PostingsInFlight.Dec()
	m.PostingOutcomes.WithLabelValues(marketplace, status).Inc()
	m.AdapterLatency.WithLabelValues(marketplace).Observe(elapsed.Seconds())
}

func (m *MetricsManager) AdapterCallAbandoned(marketplace string) {
	m.AbandonedCalls.WithLabelValues(marketplace).Inc()
}

func (m *MetricsManager) AbandonedCallReturned(marketplace string) {
	m.AbandonedCalls.WithLabelValues(marketplace).Dec()
}

func (m *MetricsManager) ObserveHTTP(method, route, code string, elapsed time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// StartMetricsServer exposes /metrics on port. It blocks like ListenAndServe.
func StartMetricsServer(port string, appLogger *logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Info("Prometheus metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
