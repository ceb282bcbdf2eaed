package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/session"
)

// Ledger is the session-scoped ledger the transport exposes under
// /transactions.
type Ledger interface {
	Create(ctx context.Context, sessionID string, in core.NewTransaction) error
	List(ctx context.Context, sessionID string) ([]core.Transaction, error)
	GetByID(ctx context.Context, sessionID string, id uuid.UUID) (*core.Transaction, error)
	Summary(ctx context.Context, sessionID string) (core.Summary, error)
}

// Pinger reports whether a dependency can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	ledger   Ledger
	resolver *session.Resolver
	ready    Pinger
	limiter  *ratelimit.Limiter
	logger   *log.Logger

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithResolver sets how session tokens are validated, minted and persisted.
func WithResolver(r *session.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithLogger sets the base logger for requests.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimiter limits POST requests per client. The server stops the
// limiter on Shutdown.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithReadiness makes /readyz ping p.
func WithReadiness(p Pinger) Option {
	return func(s *Server) { s.ready = p }
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, l Ledger, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		resolver: session.NewResolver(),
		logger:   log.New(log.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	list := s.requireSession(s.handleListTransactions)
	create := s.handleCreateTransaction
	s.handle(mux, "GET /transactions", list)
	s.handle(mux, "GET /transactions/{$}", list)
	s.handle(mux, "POST /transactions", create)
	s.handle(mux, "POST /transactions/{$}", create)
	s.handle(mux, "GET /transactions/summary", s.requireSession(s.handleSummary))
	s.handle(mux, "GET /transactions/{id}", s.withTransactionID(s.requireSession(s.handleGetTransaction)))

	s.handle(mux, "GET /healthz", handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(security.ExtractClientIP, s.writeRateLimited, http.MethodPost)(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.logger, security.ExtractClientIP).Middleware(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 120 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s
}

// handle registers h under pattern with per-route request metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	mux.Handle(pattern, instrument(route, h))
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
