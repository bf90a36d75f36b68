// Package api exposes the moderation gateway over HTTP. The handler itself is
// a thin shell around moderation.Gateway; throttling is applied as middleware
// so the published 100-requests-per-hour policy stays out of the core
// moderation contract, and verdict persistence and NATS publication are
// best-effort side effects that never change the response.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/chequemate/platform/internal/messaging"
	"github.com/chequemate/platform/internal/metrics"
	"github.com/chequemate/platform/internal/moderation"
	"github.com/chequemate/platform/internal/ratelimit"
)

// ServerConfig holds tunable parameters for the HTTP server.
type ServerConfig struct {
	ListenAddr   string        // address to listen on, e.g. ":3030"
	ReadTimeout  time.Duration // timeout for reading the full request
	WriteTimeout time.Duration // timeout for writing the full response
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   ":3030",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // upstream calls happen inside the handler
	}
}

// RateLimiter is the throttling capability the middleware needs; it is
// satisfied by *ratelimit.Limiter and by test fakes.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// Options carries the optional collaborators of the moderation server. Any
// field may be nil: the server then runs without that side effect.
type Options struct {
	Events  *moderation.EventStore // verdict persistence
	Limiter RateLimiter            // per-client throttling
	NATS    *messaging.Client      // flagged-verdict publication
}

// Server is the moderation gateway HTTP server.
type Server struct {
	config     ServerConfig
	gateway    *moderation.Gateway
	events     *moderation.EventStore
	limiter    RateLimiter
	nats       *messaging.Client
	httpServer *http.Server
}

// NewServer creates a Server around the given gateway.
func NewServer(config ServerConfig, gateway *moderation.Gateway, opts Options) *Server {
	return &Server{
		config:  config,
		gateway: gateway,
		events:  opts.Events,
		limiter: opts.Limiter,
		nats:    opts.NATS,
	}
}

// Handler returns the server's HTTP handler (exposed for tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/moderate", s.rateLimitMiddleware(http.HandlerFunc(s.handleModerate)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start begins serving and blocks until the server is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("[api] moderation server listening on %s", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// errorResponse is the 4xx/5xx body shape.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.ModerationLatency.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.ModerationRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	var req moderation.Request
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.ModerationRequests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	verdict, err := s.gateway.Moderate(r.Context(), req)
	if err != nil {
		var missing *moderation.MissingFieldError
		if errors.As(err, &missing) {
			metrics.ModerationRequests.WithLabelValues("rejected").Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: missing.Field + " is required"})
			return
		}
		log.Printf("[api] moderate failed for user=%s: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	if verdict.Flagged {
		metrics.ModerationRequests.WithLabelValues("flagged").Inc()
	} else {
		metrics.ModerationRequests.WithLabelValues("clean").Inc()
	}

	writeJSON(w, http.StatusOK, verdict)

	s.recordVerdict(req, verdict)
}

// recordVerdict persists and publishes the verdict after the response has
// been written. Both side effects are best-effort: failures are logged and
// never influence what the client saw.
func (s *Server) recordVerdict(req moderation.Request, verdict *moderation.Verdict) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := &moderation.Event{
		Username:   req.Username,
		Message:    req.Message,
		Toxicity:   verdict.Toxicity,
		Flagged:    verdict.Flagged,
		Suggestion: verdict.Suggestion,
	}

	if s.events != nil {
		if err := s.events.Record(ctx, event); err != nil {
			log.Printf("[api] record verdict for user=%s: %v", req.Username, err)
		}
	}

	if s.nats != nil && verdict.Flagged {
		payload, err := json.Marshal(struct {
			Username   string  `json:"username"`
			Message    string  `json:"message"`
			Toxicity   float64 `json:"toxicity"`
			Suggestion *string `json:"suggestion"`
			Ts         int64   `json:"ts"`
		}{
			Username:   req.Username,
			Message:    req.Message,
			Toxicity:   verdict.Toxicity,
			Suggestion: verdict.Suggestion,
			Ts:         time.Now().Unix(),
		})
		if err != nil {
			log.Printf("[api] marshal flagged verdict: %v", err)
			return
		}
		if err := s.nats.PublishFlaggedVerdict(payload); err != nil {
			log.Printf("[api] publish flagged verdict: %v", err)
		}
	}
}

// rateLimitMiddleware enforces the published per-client policy (100 requests
// per hour, 429 when exceeded). The client identifier is the username carried
// in the request body; requests whose body cannot be parsed pass through so
// the handler produces the 400. With no limiter configured the middleware is
// a no-op.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only POSTs are billable; anything else falls through to the
		// handler's 405 without touching the quota.
		if s.limiter == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var ident struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(body, &ident); err != nil || ident.Username == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, _ := s.limiter.Allow(r.Context(), ident.Username, ratelimit.RuleModerate)
		if remaining, err := s.limiter.Remaining(r.Context(), ident.Username, ratelimit.RuleModerate); err == nil {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			metrics.ModerationRequests.WithLabelValues("throttled").Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}
