package prometheus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/catedral-dev/catedral/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled = config.GenFlag[bool]("integrations.prometheus.enabled", false, "Enable Prometheus metrics")
	port    = config.GenFlag[int]("integrations.prometheus.port", 8071, "Prometheus metrics port")
)

var (
	DonationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catedral_donations_created_total",
		Help: "Donations created in pending state",
	})
	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catedral_payments_total",
		Help: "Charge attempts by gateway and resulting donation status (or error kind)",
	}, []string{"gateway", "status"})
	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catedral_webhooks_total",
		Help: "Webhook notifications by gateway and outcome",
	}, []string{"gateway", "outcome"})
	GatewayRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catedral_gateway_request_seconds",
		Help:    "Latency of outbound payment provider calls",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 30},
	}, []string{"gateway", "op"})
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catedral_persistence_failures_total",
		Help: "Database writes that failed after the provider accepted a payment",
	})
)

// ObserveGateway records the duration of a provider call started at start.
func ObserveGateway(gateway, op string, start time.Time) {
	GatewayRequestSeconds.WithLabelValues(gateway, op).Observe(time.Since(start).Seconds())
}

// InitMetrics serves /metrics on its own port until ctx is cancelled.
func InitMetrics(ctx context.Context) {
	if !enabled.Value() {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port.Value()), Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "Error with Prometheus metrics", slog.Any("err", err))
		}
	}()
}
