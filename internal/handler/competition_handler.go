package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/middleware"
	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/pkg/response"
)

type competitionService interface {
	List(ctx context.Context) ([]models.Competition, error)
	Get(ctx context.Context, id string) (*models.Competition, error)
	Create(ctx context.Context, actor models.Identity, req models.CreateCompetitionRequest) (*models.Competition, error)
	Update(ctx context.Context, actor models.Identity, id string, req models.UpdateCompetitionRequest) (*models.Competition, error)
	Delete(ctx context.Context, actor models.Identity, id string) error
}

// CompetitionHandler serves the public directory and its admin maintenance.
type CompetitionHandler struct {
	service competitionService
}

// NewCompetitionHandler creates a new handler.
func NewCompetitionHandler(svc competitionService) *CompetitionHandler {
	return &CompetitionHandler{service: svc}
}

// List godoc
// @Summary List competitions
// @Description Competitions ordered by date
// @Tags Competitions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /competitions [get]
func (h *CompetitionHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a competition
// @Tags Competitions
// @Produce json
// @Param id path string true "Competition ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /competitions/{id} [get]
func (h *CompetitionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create a competition
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateCompetitionRequest true "Competition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/competitions [post]
func (h *CompetitionHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateCompetitionRequest
	if !bindJSON(c, &req, "invalid competition payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a competition
// @Description Date and fee are locked once registrations exist
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Competition ID"
// @Param payload body models.UpdateCompetitionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/competitions/{id} [put]
func (h *CompetitionHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.UpdateCompetitionRequest
	if !bindJSON(c, &req, "invalid competition payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a competition
// @Description Only competitions without registrations can be deleted
// @Tags Admin
// @Param id path string true "Competition ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/competitions/{id} [delete]
func (h *CompetitionHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
