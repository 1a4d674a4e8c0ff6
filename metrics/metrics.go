// Package metrics exposes the agent's Prometheus metrics and the server that serves them.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruteri/tee-enclave-agent/common"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.MetricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: common.MetricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	keyRetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.MetricsNamespace,
			Name:      "key_retrievals_total",
			Help:      "Seal key retrieval phases by outcome",
		},
		[]string{"phase", "result"},
	)

	chainTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.MetricsNamespace,
			Name:      "chain_transactions_total",
			Help:      "Chain operations submitted by the agent wallet",
		},
		[]string{"op", "result"},
	)
)

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordKeyRetrieval counts one begin or complete phase of a key retrieval.
func RecordKeyRetrieval(phase string, err error) {
	keyRetrievalsTotal.WithLabelValues(phase, result(err)).Inc()
}

// RecordChainTransaction counts one chain operation.
func RecordChainTransaction(op string, err error) {
	chainTransactionsTotal.WithLabelValues(op, result(err)).Inc()
}

// Middleware records request counts and latency, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type MetricsServer struct {
	srv *http.Server
}

// New creates a server exposing the default registry on /metrics at addr.
func New(addr string) (*MetricsServer, error) {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
