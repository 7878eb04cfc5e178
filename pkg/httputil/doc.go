// Package httputil provides the JSON response helpers and the outer HTTP
// middleware shared by every route.
//
// # Response Helpers
//
// Every error body has the shape {"error": "..."}:
//
//	httputil.WriteErrorMessage(w, http.StatusBadRequest, "User ID is required")
//	httputil.WriteErrorFields(w, http.StatusBadRequest, err.Error(), map[string]interface{}{"stage": "profile"})
//	httputil.WriteUnexpectedError(w) // 500 {"error":"Unexpected error"}
//
// # Middleware
//
// The server wraps the whole router, so preflight requests are answered even
// for paths that only register POST:
//
//	handler := httputil.Chain(
//		httputil.CORSMiddleware(httputil.DefaultCORSConfig()),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: bearer auth, role gate, rate limiting
package httputil
