package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Abhracodec/osint-recon/internal/observability/metrics"
)

// MetricsServerConfig contains configuration for the Prometheus listener.
type MetricsServerConfig struct {
	Addr   string
	Prom   *metrics.PromSink
	Logger *slog.Logger
	// Ready backs /healthz when set; a non-nil error answers 503.
	Ready func(context.Context) error
}

const readyTimeout = 2 * time.Second

// buildMetricsHandler serves /metrics from the sink's registry and /healthz.
func buildMetricsHandler(prom *metrics.PromSink, ready func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	if prom != nil {
		mux.Handle("/metrics", prom.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable: " + err.Error()))
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// storeReadiness returns the store's health probe when it has one.
func storeReadiness(store any) func(context.Context) error {
	if h, ok := store.(interface{ Health(context.Context) error }); ok {
		return h.Health
	}
	return nil
}

// StartMetricsServer creates and starts the metrics listener.
// Returns the server instance for graceful shutdown.
func StartMetricsServer(cfg *MetricsServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":9090"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           buildMetricsHandler(cfg.Prom, cfg.Ready),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return server
}

// ShutdownMetricsServer gracefully shuts down the metrics listener.
func ShutdownMetricsServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger != nil {
		logger.Info("shutting down metrics server")
	}
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("metrics server stopped")
	}
	return nil
}
