package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"guestgate/internal/abuse/guard"
	"guestgate/internal/identity"
	"guestgate/internal/loyalty"
	"guestgate/internal/models"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/platform/middleware"
	"guestgate/internal/portal/detector"
	"guestgate/internal/session"
	"guestgate/internal/voucher"
)

const requestTimeout = 30 * time.Second

// UserReader is the slice of the user store the transport needs.
type UserReader interface {
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Admitter is the abuse-guard admission check.
type Admitter interface {
	Admit(ctx context.Context, req guard.Request) guard.Decision
}

// VoucherFlows redeems voucher codes and lists a guest's vouchers.
type VoucherFlows interface {
	Redeem(ctx context.Context, code string, redeemer uuid.UUID) (*models.Voucher, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Voucher, error)
}

// ProgressReader exposes the loyalty ladder position.
type ProgressReader interface {
	Progress(visitCount int) loyalty.Progress
}

// SessionFlows are the two portal entry operations.
type SessionFlows interface {
	Signup(ctx context.Context, params session.SignupParams) (*session.Result, error)
	Login(ctx context.Context, params session.LoginParams) (*session.Result, error)
}

// ProbeHandler serves captive-portal probes.
type ProbeHandler interface {
	Handle(w http.ResponseWriter, r *http.Request) bool
}

// Server wires the portal's HTTP surface.
type Server struct {
	resolver *identity.Resolver
	admitter Admitter
	detector ProbeHandler
	sessions SessionFlows
	vouchers VoucherFlows
	loyalty  ProgressReader
	users    UserReader
	minter   *session.TokenMinter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func New(resolver *identity.Resolver, admitter Admitter, probe ProbeHandler, sessions SessionFlows, vouchers VoucherFlows, progress ProgressReader, users UserReader, minter *session.TokenMinter, opts ...Option) (*Server, error) {
	if resolver == nil || admitter == nil || probe == nil || sessions == nil {
		return nil, fmt.Errorf("resolver, admitter, probe handler, and session flows are required")
	}
	if vouchers == nil || progress == nil || users == nil || minter == nil {
		return nil, fmt.Errorf("voucher redeemer, progress reader, user reader, and token minter are required")
	}
	s := &Server{
		resolver: resolver,
		admitter: admitter,
		detector: probe,
		sessions: sessions,
		vouchers: vouchers,
		loyalty:  progress,
		users:    users,
		minter:   minter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Router assembles the chi router with the middleware chain and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.admission)

	r.Get("/healthz", s.instrument("healthz", s.handleHealthz))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/portal/signup", s.instrument("signup", s.handleSignup))
		r.Post("/portal/login", s.instrument("login", s.handleLogin))
		r.Post("/vouchers/redeem", s.instrument("redeem", s.handleRedeem))
		r.Get("/vouchers", s.instrument("voucher_list", s.handleVoucherList))
		r.Get("/loyalty/progress", s.instrument("loyalty_progress", s.handleLoyaltyProgress))
	})

	// everything else is potentially a captive-portal probe
	r.NotFound(s.handleFallback)
	return r
}

// admission runs every request through the abuse guard before routing.
func (s *Server) admission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := s.admitter.Admit(r.Context(), guard.Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			RawQuery:  r.URL.RawQuery,
			IP:        identity.SourceIP(r),
			UserAgent: r.UserAgent(),
		})
		if !decision.Allowed {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{
				Code:    "forbidden",
				Message: "request rejected",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records endpoint latency when metrics are wired.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// interface guards for the concrete collaborators
var (
	_ Admitter       = (*guard.Service)(nil)
	_ SessionFlows   = (*session.Orchestrator)(nil)
	_ VoucherFlows   = (*voucher.Issuer)(nil)
	_ ProbeHandler   = (*detector.Detector)(nil)
	_ ProgressReader = (*loyalty.Engine)(nil)
)
