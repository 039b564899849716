package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/pkg/response"
)

type parentService interface {
	GetProfile(ctx context.Context, uid string) (*models.Parent, error)
	UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.Parent, error)
	ListChildren(ctx context.Context, uid string) ([]models.Child, error)
	AddChild(ctx context.Context, uid string, req models.ChildRequest) (*models.Child, error)
	UpdateChild(ctx context.Context, uid, childID string, req models.ChildRequest) (*models.Child, error)
	DeleteChild(ctx context.Context, uid, childID string) error
}

// ProfileHandler serves the signed-in parent's profile and saved children.
type ProfileHandler struct {
	service parentService
}

// NewProfileHandler creates a new handler.
func NewProfileHandler(svc parentService) *ProfileHandler {
	return &ProfileHandler{service: svc}
}

// Get godoc
// @Summary Get profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	parent, err := h.service.GetProfile(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parent, nil)
}

// Update godoc
// @Summary Update profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body models.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	parent, err := h.service.UpdateProfile(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parent, nil)
}

// ListChildren godoc
// @Summary List saved children
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/children [get]
func (h *ProfileHandler) ListChildren(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	children, err := h.service.ListChildren(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// AddChild godoc
// @Summary Save a child
// @Tags Profile
// @Accept json
// @Produce json
// @Param payload body models.ChildRequest true "Child"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/children [post]
func (h *ProfileHandler) AddChild(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.ChildRequest
	if !bindJSON(c, &req, "invalid child payload") {
		return
	}
	child, err := h.service.AddChild(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, child)
}

// UpdateChild godoc
// @Summary Replace a saved child
// @Tags Profile
// @Accept json
// @Produce json
// @Param childId path string true "Child ID"
// @Param payload body models.ChildRequest true "Child"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/children/{childId} [put]
func (h *ProfileHandler) UpdateChild(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.ChildRequest
	if !bindJSON(c, &req, "invalid child payload") {
		return
	}
	child, err := h.service.UpdateChild(c.Request.Context(), actor.ID, c.Param("childId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, child, nil)
}

// DeleteChild godoc
// @Summary Remove a saved child
// @Tags Profile
// @Param childId path string true "Child ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /profile/children/{childId} [delete]
func (h *ProfileHandler) DeleteChild(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.DeleteChild(c.Request.Context(), actor.ID, c.Param("childId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
