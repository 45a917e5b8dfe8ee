package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lowc1012/tiered-rate-limiter/internal/config"
	"github.com/lowc1012/tiered-rate-limiter/internal/log"
	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
)

func newServerCmd() *cobra.Command {
	var (
		addr    string
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server with rate-limited endpoints",
		Long: `Starts an HTTP server whose endpoints are guarded by the built-in presets.

Endpoints:
  GET  /healthz          Health check (unlimited)
  GET  /metrics          Prometheus metrics (unlimited)
  POST /api/chat         expensive-operation
  GET  /api/search       quota-limited-operation
  POST /api/documents    resource-intensive-operation
  GET  /api/documents    lightweight-operation`,
		Example: `  REDIS_URL=redis://localhost:6379/0 ratelimiter server
  ratelimiter server --addr :9090 --env-file .env.local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := log.Init(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := ratelimiter.NewPrometheusRecorder(reg)
			if err != nil {
				return err
			}

			manager, client, err := newManager(cfg, logger, ratelimiter.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           newRouter(manager, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
				ReadHeaderTimeout: 5 * time.Second,
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Server listening", zap.String("addr", cfg.Server.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				logger.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (overrides SERVER_ADDR)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")

	return cmd
}

// newRouter mounts stand-ins for the document and chat handlers. Each one
// only runs after its preset admitted the request.
func newRouter(m *ratelimiter.Manager, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.With(m.Middleware(ratelimiter.PresetExpensive)).Post("/chat", accepted("chat"))
		r.With(m.Middleware(ratelimiter.PresetQuotaLimited)).Get("/search", accepted("search"))
		r.With(m.Middleware(ratelimiter.PresetResourceIntensive)).Post("/documents", accepted("upload"))
		r.With(m.Middleware(ratelimiter.PresetLightweight)).Get("/documents", accepted("list"))
	})

	return r
}

func accepted(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"operation": op, "status": "accepted"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loadConfig(envFile string) (config.Config, error) {
	if envFile != "" {
		return config.Load(envFile)
	}
	return config.Load()
}
