package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/updates"
)

func (s *Server) checkUpdate(w http.ResponseWriter, r *http.Request) {
	// signed URLs are per-call; never let an intermediary reuse one
	w.Header().Set("Cache-Control", "no-store")

	latest, err := s.updates.ResolveLatest(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, updates.ErrMetadataUnavailable):
			httputil.WriteInternalError(w, "Failed to load update metadata")
		case errors.Is(err, updates.ErrInvalidMetadata):
			httputil.WriteInternalError(w, "Invalid update metadata")
		case errors.Is(err, updates.ErrSigningFailed):
			httputil.WriteInternalError(w, "Failed to sign APK URL")
		default:
			observability.FromContext(r.Context()).WithError(err).Error("Unexpected update resolution failure")
			httputil.WriteUnexpectedError(w)
		}
		return
	}

	httputil.WriteSuccess(w, latest)
}
