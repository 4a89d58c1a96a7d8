// Package metrics serves Prometheus metrics on a dedicated listener and
// holds the service's collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/docbind-trust-core/common"
)

var (
	// OperationsTotal counts operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "operations_total",
		Help:      "Operations by name and outcome.",
	}, []string{"operation", "outcome"})

	// VerificationsTotal counts capability verifications by outcome, with
	// the failed check as the reason label for rejections.
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "capability_verifications_total",
		Help:      "Capability verifications by outcome.",
	}, []string{"outcome", "reason"})

	// ResolverFailuresTotal counts resolver invocation failures by kind.
	ResolverFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "resolver_failures_total",
		Help:      "Resolver invocation failures by kind.",
	}, []string{"kind"})
)

// MetricsServer exposes the default registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
