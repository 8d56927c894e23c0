package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arclight/llmgateway/gateway"
	"github.com/arclight/llmgateway/internal/metrics"
	"github.com/arclight/llmgateway/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server runs the example gateway's HTTP surface: the /generate endpoint
// on one port, /metrics on another, both behind graceful shutdown.
type Server struct {
	logger *zap.Logger
	router *gateway.Router

	httpAddr    string
	metricsAddr string
	apiKeys     []string
	corsOrigins []string
	rateLimit   float64
	rateBurst   int

	httpManager    *server.Manager
	metricsManager *server.Manager
	metrics        *metrics.Collector
}

// ServerOptions configures the example host's network and access-control
// surface; everything else is sourced from gateway.Settings.
type ServerOptions struct {
	HTTPAddr    string
	MetricsAddr string
	APIKeys     []string
	CORSOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer wires a Server around an already-built Router.
func NewServer(router *gateway.Router, opts ServerOptions, logger *zap.Logger) *Server {
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = ":8080"
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = ":9090"
	}
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst == 0 {
		opts.RateLimitBurst = 40
	}
	return &Server{
		logger:      logger,
		router:      router,
		httpAddr:    opts.HTTPAddr,
		metricsAddr: opts.MetricsAddr,
		apiKeys:     opts.APIKeys,
		corsOrigins: opts.CORSOrigins,
		rateLimit:   opts.RateLimitRPS,
		rateBurst:   opts.RateLimitBurst,
		metrics:     metrics.NewCollector("llmgateway", logger),
	}
}

// Start brings up both the /generate server and the /metrics server,
// both non-blocking.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.logger.Info("gateway started", zap.String("http_addr", s.httpAddr), zap.String("metrics_addr", s.metricsAddr))
	return nil
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.Handle("/generate", NewGenerateHandler(s.router, s.logger))

	skipAuth := []string{"/healthz"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metrics),
		CORS(s.corsOrigins),
		RateLimiter(ctx, s.rateLimit, s.rateBurst),
		APIKeyAuth(s.apiKeys, skipAuth, s.logger),
	)

	cfg := server.Config{
		Addr:            s.httpAddr,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
	s.httpManager = server.NewManager(handler, cfg, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.Config{
		Addr:            s.metricsAddr,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	s.metricsManager = server.NewManager(mux, cfg, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks until an OS signal arrives, then shuts both
// servers down gracefully.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown closes both listeners.
func (s *Server) Shutdown() {
	ctx := context.Background()
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
}
