package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/response"
)

type identityService interface {
	SignInWithGoogle(ctx context.Context, req models.GoogleSignInRequest) (*models.AuthResponse, error)
	SignInAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.AuthResponse, error)
	SignOut(ctx context.Context, claims *models.JWTClaims, ip, userAgent string) error
}

// AuthHandler wires HTTP endpoints to the identity service.
type AuthHandler struct {
	service identityService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc identityService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// GoogleSignIn godoc
// @Summary Sign in with Google
// @Description Exchange a Google ID token for an access token. First sign-in creates the parent profile.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.GoogleSignInRequest true "Google ID token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/google [post]
func (h *AuthHandler) GoogleSignIn(c *gin.Context) {
	var req models.GoogleSignInRequest
	if !bindJSON(c, &req, "invalid sign-in payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.SignInWithGoogle(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// AdminLogin godoc
// @Summary Administrator login
// @Description Authenticate an administrator by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.AdminLoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req models.AdminLoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.SignInAdmin(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Sign out
// @Description End the current session. Open payment flows of the session are torn down.
// @Tags Authentication
// @Produce json
// @Success 204
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.SignOut(c.Request.Context(), claims, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Current user
// @Description Return the signed-in identity
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, actor, nil)
}
