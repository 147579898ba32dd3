package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-identity-api/internal/dto"
	"github.com/noah-isme/tutor-identity-api/pkg/response"
)

type invitePreviewer interface {
	Preview(ctx context.Context, token string) (*dto.InvitePreview, error)
}

type profileClaimer interface {
	Claim(ctx context.Context, token, claimantUserID string, prefs dto.ClaimPreferences) (*dto.ClaimResult, error)
}

// InviteHandler serves the student side of an invitation.
type InviteHandler struct {
	invites invitePreviewer
	claims  profileClaimer
}

// NewInviteHandler constructs InviteHandler.
func NewInviteHandler(invites invitePreviewer, claims profileClaimer) *InviteHandler {
	return &InviteHandler{invites: invites, claims: claims}
}

// Preview godoc
// @Summary Describe an invitation before claiming it
// @Tags Invites
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invitation token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /invites/{token} [get]
func (h *InviteHandler) Preview(c *gin.Context) {
	preview, err := h.invites.Preview(c.Request.Context(), strings.TrimSpace(c.Param("token")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Claim godoc
// @Summary Claim an invitation
// @Description Takes over the shadow profile, or merges it into the caller's existing profile. Omitted preferences default to true.
// @Tags Invites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param token path string true "Invitation token"
// @Param payload body dto.ClaimRequest false "Claim preferences"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /invites/{token}/claim [post]
func (h *InviteHandler) Claim(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.claims.Claim(c.Request.Context(), strings.TrimSpace(c.Param("token")), currentUserID(c), req.Preferences())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
