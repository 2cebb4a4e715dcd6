package api

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/authz"
	"github.com/strideworks/stride/pkg/goals"
	"github.com/strideworks/stride/pkg/middleware"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/tenants"
)

// Server is the HTTP front of the authorization service. It owns the router
// and the middleware chain; domain handlers register themselves onto it.
type Server struct {
	router *mux.Router

	authzStore  *authz.Store
	builder     *authz.ContextBuilder
	engine      *authz.Engine
	assignments *authz.AssignmentService

	logger  *observability.Logger
	metrics *observability.Metrics
}

// ServerConfig carries the dependencies the server wires together.
type ServerConfig struct {
	DB          *sql.DB
	Redis       *redis.Client
	AuthzStore  *authz.Store
	Builder     *authz.ContextBuilder
	Engine      *authz.Engine
	Assignments *authz.AssignmentService
	AuditSearch authz.AuditSearcher
	Logger      *observability.Logger
	Metrics     *observability.Metrics

	// RateLimit enables per-caller throttling. Distributed selects the
	// redis-backed limiter shared across instances.
	RateLimit            bool
	DistributedRateLimit bool
}

// NewServer builds the router with the full middleware chain and all domain
// routes registered.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		authzStore:  cfg.AuthzStore,
		builder:     cfg.Builder,
		engine:      cfg.Engine,
		assignments: cfg.Assignments,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recovery(cfg.Logger))
	if cfg.Logger != nil {
		s.router.Use(middleware.RequestLogging(cfg.Logger))
	}
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	if cfg.RateLimit {
		if cfg.DistributedRateLimit && cfg.Redis != nil {
			s.router.Use(middleware.NewDistributedRateLimitMiddleware(cfg.Redis).Handler)
		} else {
			s.router.Use(middleware.NewRateLimitMiddleware().Handler)
		}
	}
	s.router.Use(middleware.NewIdentityMiddleware(false).Handler)

	s.registerRoutes(cfg)
	return s
}

func (s *Server) registerRoutes(cfg ServerConfig) {
	authzHandlers := authz.NewHandlers(s.authzStore, s.builder, s.assignments, s.engine, cfg.AuditSearch)
	authzHandlers.RegisterRoutes(s.router)

	tenantStore := tenants.NewStore(cfg.DB)
	tenantService := tenants.NewService(tenantStore, s.engine, s.builder, s.assignments,
		tenants.WithLogger(s.logger))
	tenants.NewHandlers(tenantService, s.authzStore).RegisterRoutes(s.router)

	goalStore := goals.NewStore(cfg.DB)
	goalService := goals.NewService(goalStore, s.authzStore, s.engine, s.builder,
		goals.WithLogger(s.logger))
	goals.NewHandlers(goalService).RegisterRoutes(s.router)
}

// Router exposes the configured router, mostly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// interface guard
var _ authz.AuditSearcher = (*audit.DBLogger)(nil)
