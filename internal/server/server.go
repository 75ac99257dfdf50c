// Package server implements the HTTP server that exposes the chat chain
// via a small REST API: document upload, chat, history, reset, and the
// usual health/readiness/metrics endpoints.
// The server is started by the `ragbot serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragbot/ragbot-go/internal/chain"
	"github.com/ragbot/ragbot-go/internal/logging"
)

// New constructs a Server from the provided chain session, document ingestor,
// and config. The ingestor may be nil, in which case document uploads are
// rejected with 501.
func New(session answerer, ingestor documentIngestor, cfg *Config) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("server: session must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// A chat turn can take up to two model calls; document uploads can
		// take longer still for large PDFs.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := cfg.MetricsRegistry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		session:  session,
		ingestor: ingestor,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(registry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: API key not configured — authentication is disabled")
	}

	// Protected API routes sit behind auth and the per-IP rate limiter.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("POST /api/documents", s.handleDocuments)
	api.HandleFunc("POST /api/reset", s.handleReset)
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/history", s.handleHistory)

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL
	protected := authMiddleware(cfg.APIKey, rl.middleware(api))

	// Health, readiness, and metrics stay open so orchestrators can probe
	// without credentials. The mux picks the most specific pattern, so these
	// win over the /api/ catch-all.
	mux := http.NewServeMux()
	mux.Handle("/api/", protected)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", http.FileServer(http.Dir("ui/static")))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.httpMetrics(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. It runs one chain turn and returns the
// answer with its source chunks as JSON. Failed turns are mapped to an HTTP
// status by their kind, with a user-facing message instead of raw error text.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	start := time.Now()
	res, err := s.session.Answer(r.Context(), req.Message)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

		logging.FromContext(r.Context()).Error("chat turn failed",
			slog.String("kind", string(chain.KindOf(err))),
			slog.Any("error", err),
		)
		writeError(w, statusForKind(chain.KindOf(err)), string(chain.KindOf(err)), chain.FallbackMessage(err))
		return
	}

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())

	writeJSON(w, http.StatusOK, chatResponse{Answer: res.Answer, Sources: res.Sources})
}

// statusForKind maps a turn error kind to an HTTP status code.
func statusForKind(kind chain.ErrorKind) int {
	switch kind {
	case chain.KindNoVectorStore:
		return http.StatusConflict
	case chain.KindModelInvocation:
		return http.StatusBadGateway
	case chain.KindDocumentProcessing:
		return http.StatusUnprocessableEntity
	case chain.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	if kind == "" {
		kind = "internal"
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}
