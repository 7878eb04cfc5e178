package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/moderation"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/updates"
)

// maxBodyBytes bounds request bodies; the only body is a small ban request
const maxBodyBytes = 64 << 10

// edge function clients call the same operations under this prefix
const functionsPrefix = "/functions/v1"

// BanService applies ban state changes
type BanService interface {
	SetBanState(ctx context.Context, callerID, targetID string, banned bool) (*moderation.Result, error)
}

// UpdateResolver resolves the latest update descriptor
type UpdateResolver interface {
	ResolveLatest(ctx context.Context) (*updates.Latest, error)
}

// Dependencies are the collaborators the server routes to
type Dependencies struct {
	Verifier     auth.Verifier
	Authorizer   auth.Authorizer
	Bans         BanService
	Updates      UpdateResolver
	UpdateAccess updates.AccessMode

	// Limiter is optional; nil disables rate limiting
	Limiter middleware.Limiter
	// Metrics is optional
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Server is the gatehouse HTTP API
type Server struct {
	router     *mux.Router
	handler    http.Handler
	authorizer auth.Authorizer
	bans       BanService
	updates    UpdateResolver
}

// NewServer creates a new API server with all routes registered
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if deps.UpdateAccess == "" {
		deps.UpdateAccess = updates.AccessAuthenticated
	}

	s := &Server{
		router:     mux.NewRouter(),
		authorizer: deps.Authorizer,
		bans:       deps.Bans,
		updates:    deps.Updates,
	}

	s.setupRoutes(deps)

	s.handler = httputil.Chain(
		httputil.CORSMiddleware(httputil.DefaultCORSConfig()),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router)
	s.handler = otelhttp.NewHandler(s.handler, "gatehouse.api",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Dependencies) {
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	requireAuth := middleware.NewAuthMiddleware(deps.Verifier, false, deps.Metrics).Handler
	rateLimit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		rateLimit = middleware.NewRateLimitMiddleware(deps.Limiter, deps.Metrics).Handler
	}

	// The role check for bans lives in the handler: a self-targeted request
	// is rejected before the profile store is consulted.
	banUser := httputil.Chain(requireAuth, rateLimit)(http.HandlerFunc(s.banUser))

	var updateGate []func(http.Handler) http.Handler
	switch deps.UpdateAccess {
	case updates.AccessPublic:
	case updates.AccessAdmin:
		updateGate = append(updateGate, requireAuth,
			middleware.RequireRole(deps.Authorizer, auth.RoleAdmin, "Only admins can check updates"))
	default:
		updateGate = append(updateGate, requireAuth)
	}
	updateGate = append(updateGate, rateLimit)
	checkUpdate := httputil.Chain(updateGate...)(http.HandlerFunc(s.checkUpdate))

	for _, prefix := range []string{"", functionsPrefix} {
		s.router.Handle(prefix+"/ban-user", banUser).Methods(http.MethodPost)
		s.router.Handle(prefix+"/check-update", checkUpdate).Methods(http.MethodGet, http.MethodPost)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}
