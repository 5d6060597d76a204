package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics holds Prometheus metrics for the scheduling core
type Metrics struct {
	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestsInFlight   *prometheus.GaugeVec
	DBConnPoolStats    *prometheus.GaugeVec
	CacheLookups       *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	PhaseTransitions   *prometheus.CounterVec
	SweepRuns          prometheus.Counter
	ViewBuildDuration  prometheus.Histogram
}

// NewMetrics creates a new metrics instance
func NewMetrics(serviceName string) *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "requests_total",
				Help:      "Total number of requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestsInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
			[]string{"method"},
		),
		DBConnPoolStats: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"}, // stat can be: open, in_use, idle, wait_count, etc.
		),
		CacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "view_cache_lookups_total",
				Help:      "View cache lookups by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		CacheInvalidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "view_cache_invalidations_total",
				Help:      "Bulk view cache invalidations by triggering operation",
			},
			[]string{"operation"},
		),
		PhaseTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "phase_transitions_total",
				Help:      "Event phase transitions by edge",
			},
			[]string{"from", "to"},
		),
		SweepRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "deadline_sweep_runs_total",
				Help:      "Completed deadline sweep passes",
			},
		),
		ViewBuildDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nostress",
				Subsystem: serviceName,
				Name:      "view_build_duration_seconds",
				Help:      "Time spent assembling a composite event view on cache miss",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// UnaryServerInterceptor returns a new unary server interceptor for metrics
func UnaryServerInterceptor(metrics *Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := info.FullMethod

		metrics.RequestsInFlight.WithLabelValues(method).Inc()
		defer metrics.RequestsInFlight.WithLabelValues(method).Dec()

		start := time.Now()
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(method).Observe(duration)
		}()

		resp, err := handler(ctx, req)

		statusCode := "ok"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		metrics.RequestCounter.WithLabelValues(method, statusCode).Inc()

		return resp, err
	}
}

// StreamServerInterceptor returns a new stream server interceptor for metrics
func StreamServerInterceptor(metrics *Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		method := info.FullMethod

		metrics.RequestsInFlight.WithLabelValues(method).Inc()
		defer metrics.RequestsInFlight.WithLabelValues(method).Dec()

		start := time.Now()
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(method).Observe(duration)
		}()

		err := handler(srv, stream)

		statusCode := "ok"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		metrics.RequestCounter.WithLabelValues(method, statusCode).Inc()

		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments HTTP requests with the same counters the gRPC
// interceptor feeds.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.WithLabelValues(r.Method).Inc()
		defer m.RequestsInFlight.WithLabelValues(r.Method).Dec()

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).Inc()
	})
}

// RecordCacheLookup counts one cache probe outcome for a tier.
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, outcome).Inc()
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(stats sql.DBStats) {
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
}
