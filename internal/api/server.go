package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"code-playground/internal/config"
)

// Server is the main HTTP server for the playground API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.AllowedOrigins == nil {
		deps.AllowedOrigins = cfg.Security.AllowedOrigins
	}
	if deps.MaxMessage == 0 {
		deps.MaxMessage = cfg.Server.MaxRequestBody
	}
	handlers := NewHandlers(deps)

	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		startTime: time.Now(),
	}

	if len(cfg.Security.AllowedKeys) == 0 {
		log.Warn().Msg("no API keys configured, the playground API is open to any caller")
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	h := s.handlers
	cfg := s.cfg

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /execute", h.HandleExecute)
	apiMux.HandleFunc("POST /execute/stream", h.HandleExecuteStream)
	apiMux.HandleFunc("GET /ws/run", h.HandleWebSocket)
	apiMux.HandleFunc("POST /sessions", h.HandleCreateSession)
	apiMux.HandleFunc("GET /sessions/{id}", h.HandleGetSession)
	apiMux.HandleFunc("PUT /sessions/{id}", h.HandleUpdateSession)
	apiMux.HandleFunc("DELETE /sessions/{id}", h.HandleDeleteSession)
	apiMux.HandleFunc("POST /sessions/{id}/run", h.HandleRunSession)
	apiMux.HandleFunc("GET /executions", h.HandleListExecutions)
	apiMux.HandleFunc("GET /executions/{id}", h.HandleGetExecution)

	authedAPI := AuthMiddleware(cfg.Security.APIKeyHeader, cfg.Security.AllowedKeys)(apiMux)

	// Read-only catalog, health and metrics bypass auth.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /examples", h.HandleListExamples)
	mux.HandleFunc("GET /examples/{slug}", h.HandleGetExample)
	mux.HandleFunc("GET /capabilities", h.HandleCapabilities)
	if cfg.Metrics.Enabled && h.metrics != nil {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", authedAPI)

	// Apply middleware chain (outermost last)
	var handler http.Handler = mux
	if h.metrics != nil {
		handler = MetricsMiddleware(h.metrics)(handler)
	}
	handler = RateLimitMiddleware(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = CORSMiddleware(cfg.Security.AllowedOrigins)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	return handler
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.handlers
	dbOK := h.executions == nil || h.executions.Healthy(r.Context())

	resp := HealthResponse{
		Status:           "ok",
		Backend:          h.svc.BackendName(),
		Database:         dbOK,
		ActiveExecutions: h.active(),
		Uptime:           uptime(s.startTime),
	}
	if !dbOK {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
