// Package middleware provides the per-route HTTP gates: bearer authentication,
// role checks, and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: verifies "Authorization: Bearer <token>" with an auth.Verifier
// and stores the caller's *auth.AuthContext on the request context.
//
//	authMW := middleware.NewAuthMiddleware(publicClient, false, metrics)
//	router.Handle("/check-update", authMW.Handler(handler))
//
// RequireRole: admits only callers whose profile role matches, answering 403
// with the given message otherwise.
//
//	middleware.RequireRole(authorizer, auth.RoleAdmin, "Only admins can check updates")
//
// RateLimitMiddleware: keyed by caller id when authenticated, otherwise by
// client IP, over either limiter:
//
//	limiter := middleware.NewRateLimiter(cfg)                              // in-process token bucket
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "") // shared fixed window
//	router.Use(middleware.NewRateLimitMiddleware(limiter, metrics).Handler)
//
// Redis failures fail open: the request is served and a warning is logged.
//
// # Related Packages
//
//   - pkg/auth: verifier and authorizer interfaces
//   - pkg/httputil: response helpers and outer middleware
package middleware
