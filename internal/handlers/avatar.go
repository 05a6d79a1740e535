package handlers

import (
	"context"
	"net/http"

	"lifesignal-backend/internal/middleware"
	"lifesignal-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// AvatarPresigner issues upload URLs for profile pictures
type AvatarPresigner interface {
	PresignUpload(ctx context.Context, userID, contentType string) (*services.AvatarUploadResponse, error)
}

// AvatarHandler handles avatar upload requests
type AvatarHandler struct {
	avatars AvatarPresigner
}

// NewAvatarHandler creates a new avatar handler
func NewAvatarHandler(avatars AvatarPresigner) *AvatarHandler {
	return &AvatarHandler{avatars: avatars}
}

// UploadAvatar handles POST /api/v1/me/avatar
func (h *AvatarHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.AvatarUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.avatars.PresignUpload(ctx, userID, req.ContentType)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create avatar upload URL")
		respondFailure(w, err)
		return
	}

	log.Info().Str("user_id", userID).Str("key", resp.Key).Msg("Avatar upload URL created")
	respondJSON(w, http.StatusOK, resp)
}
