package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/moderation"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

const (
	msgSelfBan         = "Cannot ban yourself"
	msgAdminsOnly      = "Only admins can ban users"
	msgUserIDRequired  = "User ID is required"
	msgBannedSuccess   = "User banned successfully"
	msgUnbannedSuccess = "User unbanned successfully"
)

// BanRequest is the body of POST /ban-user
type BanRequest struct {
	UserID string `json:"userId"`
	// Ban is kept raw: only a literal false means unban
	Ban json.RawMessage `json:"ban,omitempty"`
}

// WantsBan reports whether the request asks for a ban
func (r BanRequest) WantsBan() bool {
	return !bytes.Equal(bytes.TrimSpace(r.Ban), []byte("false"))
}

// BanResponse is returned on success
type BanResponse struct {
	Message string      `json:"message"`
	User    interface{} `json:"user"`
}

func (s *Server) banUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetAuthContext(r).UserID()
	logger := observability.FromContext(ctx)

	var req BanRequest
	parseErr := httputil.ParseJSON(r, &req)

	if parseErr == nil && req.UserID != "" && req.UserID == callerID {
		httputil.WriteBadRequest(w, msgSelfBan)
		return
	}

	if err := s.authorizer.Authorize(ctx, callerID, auth.RoleAdmin); err != nil {
		logger.WithError(err).Warn("Non-admin attempted a ban")
		httputil.WriteForbidden(w, msgAdminsOnly)
		return
	}

	if parseErr != nil || req.UserID == "" {
		httputil.WriteBadRequest(w, msgUserIDRequired)
		return
	}

	result, err := s.bans.SetBanState(ctx, callerID, req.UserID, req.WantsBan())
	if err != nil {
		writeBanError(w, logger, err)
		return
	}

	message := msgUnbannedSuccess
	if result.Action == moderation.ActionBanned {
		message = msgBannedSuccess
	}
	httputil.WriteSuccess(w, BanResponse{Message: message, User: result.User})
}

func writeBanError(w http.ResponseWriter, logger *observability.Logger, err error) {
	var stageErr *moderation.StageError
	switch {
	case errors.Is(err, moderation.ErrSelfTarget):
		httputil.WriteBadRequest(w, msgSelfBan)
	case errors.Is(err, moderation.ErrMissingTarget):
		httputil.WriteBadRequest(w, msgUserIDRequired)
	case errors.As(err, &stageErr):
		httputil.WriteErrorFields(w, http.StatusBadRequest, stageErr.Error(), map[string]interface{}{
			"stage": string(stageErr.Stage),
		})
	default:
		logger.WithError(err).Error("Unexpected ban failure")
		httputil.WriteUnexpectedError(w)
	}
}
