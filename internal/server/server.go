package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "shop-assistant/docs" // registers the swagger document
	"shop-assistant/internal/handlers"
	"shop-assistant/internal/routes"
	"shop-assistant/internal/services"
)

// RequestIDHeader is echoed on every response
const RequestIDHeader = "X-Request-ID"

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handlers.UserIDHeader+", "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware reuses the caller's X-Request-ID or issues one, and
// hands it to the chat pipeline through the request context
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response status. It forwards Flush so event
// streams keep working behind the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func accessLogMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.String("request_id", services.RequestIDFrom(r.Context())),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// NewRouter builds the HTTP handler tree around a chat service
func NewRouter(chat handlers.ChatService, registry *prometheus.Registry, publicURL string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, handlers.NewChatHandler(chat, logger))

	if registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL(strings.TrimRight(publicURL, "/")+"/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	return corsMiddleware(requestIDMiddleware(accessLogMiddleware(logger.Named("http"))(router)))
}

func NewServer(app *App) *http.Server {
	cfg := app.Config.Server
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(app.Chat, app.Registry, cfg.PublicURL, app.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests and stops
// the background workers
func Run(ctx context.Context, app *App) error {
	srv := NewServer(app)
	logger := app.Logger

	if err := app.Workers.StartAll(ctx); err != nil {
		logger.Warn("Failed to start background workers", zap.Error(err))
	} else if n := app.Workers.Count(); n > 0 {
		logger.Info("Background workers started", zap.Int("workers", n))
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting shop assistant server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := app.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Shutting down server", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	if err := app.Workers.StopAll(shutdownCtx); err != nil {
		logger.Warn("Background workers did not stop cleanly", zap.Error(err))
	}
	for _, stats := range app.Workers.GetAllStats() {
		logger.Info("Worker stopped",
			zap.String("worker", stats.WorkerName),
			zap.Int64("jobs_processed", stats.JobsProcessed),
			zap.Int64("jobs_failed", stats.JobsFailed),
			zap.Duration("uptime", stats.Uptime))
	}
	return nil
}
