// Package metrics exposes prometheus instrumentation for store operations.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type StoreMetrics struct {
	MessagesAdded   *prometheus.CounterVec
	MessagesUpdated *prometheus.CounterVec
	GroupPolls      *prometheus.CounterVec
	GroupsExpired   *prometheus.CounterVec
}

// New builds and registers the store collectors. Tests pass their own
// registry; the daemon passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		MessagesAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgstore_messages_added_total",
				Help: "Total messages inserted",
			},
			[]string{"region"},
		),
		MessagesUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgstore_messages_updated_total",
				Help: "Total message content updates on re-add",
			},
			[]string{"region"},
		),
		GroupPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgstore_group_polls_total",
				Help: "Total members polled out of groups",
			},
			[]string{"region"},
		),
		GroupsExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgstore_groups_expired_total",
				Help: "Total groups reported to expiry callbacks",
			},
			[]string{"region"},
		),
	}
	reg.MustRegister(m.MessagesAdded, m.MessagesUpdated, m.GroupPolls, m.GroupsExpired)
	return m
}

// Serve exposes /metrics until the context is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
