package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

const (
	// MessageNoAuthorization is returned when the Authorization header is absent
	MessageNoAuthorization = "No authorization header"
	// MessageUnauthorized is returned for any credential the provider rejects
	MessageUnauthorized = "Unauthorized"
)

// AuthMiddleware verifies bearer tokens with the identity provider
type AuthMiddleware struct {
	verifier auth.Verifier
	optional bool // If true, allow requests without an Authorization header
	metrics  *observability.Metrics
}

// NewAuthMiddleware creates a new authentication middleware. metrics may be nil.
func NewAuthMiddleware(verifier auth.Verifier, optional bool, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		optional: optional,
		metrics:  metrics,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if errors.Is(err, auth.ErrMissingCredential) {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.metrics.IncAuthFailure("missing_credential")
			httputil.WriteUnauthorized(w, MessageNoAuthorization)
			return
		}
		if err != nil {
			m.metrics.IncAuthFailure("invalid_credential")
			httputil.WriteUnauthorized(w, MessageUnauthorized)
			return
		}

		identity, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.metrics.IncAuthFailure("invalid_credential")
			observability.FromContext(r.Context()).WithError(err).Warn("Credential verification failed")
			httputil.WriteUnauthorized(w, MessageUnauthorized)
			return
		}

		ctx := WithAuthContext(r.Context(), &auth.AuthContext{Identity: identity})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithAuthContext stores the verified caller on ctx
func WithAuthContext(ctx context.Context, authCtx *auth.AuthContext) context.Context {
	ctx = context.WithValue(ctx, contextkeys.AuthKey, authCtx)
	if id := authCtx.UserID(); id != "" {
		ctx = observability.WithUserID(ctx, id)
	}
	return ctx
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireRole creates middleware that only admits callers whose profile role
// is role. It must run behind AuthMiddleware.
func RequireRole(authorizer auth.Authorizer, role auth.Role, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx.UserID() == "" {
				httputil.WriteUnauthorized(w, MessageUnauthorized)
				return
			}

			if err := authorizer.Authorize(r.Context(), authCtx.UserID(), role); err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("Role check failed")
				httputil.WriteForbidden(w, message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
