package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const healthBody = "✅ Meta Solver online"

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr        string
	EventsPath  string // default: /slack/events
	Events      http.Handler
	MetricsPath string // empty disables the metrics endpoint
	Metrics     http.Handler
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Server exposes the health probe, the Slack events endpoint and, optionally, metrics.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	server *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.EventsPath == "" {
		cfg.EventsPath = "/slack/events"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, healthBody)
	})
	mux.Handle("POST "+s.cfg.EventsPath, s.cfg.Events)
	if s.cfg.MetricsPath != "" && s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics)
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.cfg.Addr, "events_path", s.cfg.EventsPath, "metrics_path", s.cfg.MetricsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		// In-flight events run synchronously inside their requests; give them time to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
