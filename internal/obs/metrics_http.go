package obs

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(context.Context) error

// BootstrapMetricsServer serves /metrics and /healthz on addr for processes
// without an HTTP API of their own.
func BootstrapMetricsServer(addr string, checks map[string]HealthCheck, l *zap.Logger) *http.Server {
	ms := &http.Server{
		Addr:         addr,
		Handler:      MetricsMux(checks, l),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()
	return ms
}

func MetricsMux(checks map[string]HealthCheck, l *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if failed := runChecks(ctx, checks, l); len(failed) > 0 {
			http.Error(w, "unhealthy: "+strings.Join(failed, ","), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func runChecks(ctx context.Context, checks map[string]HealthCheck, l *zap.Logger) []string {
	var failed []string
	for name, check := range checks {
		if err := check(ctx); err != nil {
			l.Warn("health check failed", zap.String("check", name), zap.Error(err))
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}
