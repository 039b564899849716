package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, actor models.Identity, req models.CreateRegistrationRequest) (*models.Registration, error)
	ListMine(ctx context.Context, actor models.Identity) ([]models.Registration, error)
	Get(ctx context.Context, actor models.Identity, id string) (*models.Registration, error)
	UpdateDetails(ctx context.Context, actor models.Identity, id string, patch models.UpdateRegistrationRequest) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	ListByCompetition(ctx context.Context, competitionID string) ([]models.Registration, error)
	Delete(ctx context.Context, actor models.Identity, id string) error
	Export(ctx context.Context, actor models.Identity, req models.ExportRequest) (*models.ExportResult, error)
}

type registrationLifecycle interface {
	CancelRegistration(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error)
	TogglePaid(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error)
}

// RegistrationHandler serves the parent and admin registration surfaces.
type RegistrationHandler struct {
	service   registrationService
	lifecycle registrationLifecycle
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc registrationService, lifecycle registrationLifecycle) *RegistrationHandler {
	return &RegistrationHandler{service: svc, lifecycle: lifecycle}
}

// Create godoc
// @Summary Register a student
// @Description Creates a pending, unpaid registration for the signed-in parent
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body models.CreateRegistrationRequest true "Registration form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateRegistrationRequest
	if !bindJSON(c, &req, "invalid registration payload") {
		return
	}
	reg, err := h.service.Register(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// ListMine godoc
// @Summary List my registrations
// @Tags Registrations
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [get]
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	regs, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, nil)
}

// Get godoc
// @Summary Get a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reg, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Update godoc
// @Summary Edit registration details
// @Description Merges student and guardian fields; cancelled registrations are read-only
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body models.UpdateRegistrationRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id} [patch]
func (h *RegistrationHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var patch models.UpdateRegistrationRequest
	if !bindJSON(c, &patch, "invalid registration payload") {
		return
	}
	reg, err := h.service.UpdateDetails(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Cancel godoc
// @Summary Cancel a registration
// @Description Idempotent. The paid flag is left untouched.
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id}/cancel [post]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reg, err := h.lifecycle.CancelRegistration(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// AdminList godoc
// @Summary List registrations
// @Tags Admin
// @Produce json
// @Param competition_id query string false "Competition ID"
// @Param status query string false "pending, confirmed or cancelled"
// @Param paid query bool false "Paid flag"
// @Param search query string false "Student, school or competition name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations [get]
func (h *RegistrationHandler) AdminList(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	regs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	response.JSON(c, http.StatusOK, regs, &response.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total})
}

// AdminGet godoc
// @Summary Get any registration
// @Tags Admin
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/{id} [get]
func (h *RegistrationHandler) AdminGet(c *gin.Context) {
	h.Get(c)
}

// TogglePaid godoc
// @Summary Override payment status
// @Description Flips paid/unpaid without the gateway, keeping status consistent
// @Tags Admin
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/{id}/toggle-paid [post]
func (h *RegistrationHandler) TogglePaid(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reg, err := h.lifecycle.TogglePaid(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// AdminDelete godoc
// @Summary Delete a registration
// @Tags Admin
// @Param id path string true "Registration ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/{id} [delete]
func (h *RegistrationHandler) AdminDelete(c *gin.Context) {
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

// Roster godoc
// @Summary Competition roster
// @Tags Admin
// @Produce json
// @Param id path string true "Competition ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/competitions/{id}/registrations [get]
func (h *RegistrationHandler) Roster(c *gin.Context) {
	regs, err := h.service.ListByCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, nil)
}

// Export godoc
// @Summary Export registrations
// @Description Renders the filtered registrations as CSV or PDF and returns a signed download link
// @Tags Admin
// @Produce json
// @Param format query string true "csv or pdf"
// @Param competition_id query string false "Competition ID"
// @Param status query string false "Status"
// @Param paid query bool false "Paid flag"
// @Param search query string false "Search"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/registrations/export [post]
func (h *RegistrationHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Export(c.Request.Context(), actor, models.ExportRequest{
		Format: models.ExportFormat(c.DefaultQuery("format", string(models.ExportCSV))),
		Filter: filter,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func filterFromQuery(c *gin.Context) (models.RegistrationFilter, error) {
	filter := models.RegistrationFilter{
		CompetitionID: c.Query("competition_id"),
		Status:        models.RegistrationStatus(c.Query("status")),
		Search:        c.Query("search"),
		Page:          queryInt(c, "page", 1),
		PageSize:      queryInt(c, "page_size", 20),
	}
	if raw := c.Query("paid"); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "paid must be true or false")
		}
		filter.Paid = &paid
	}
	return filter, nil
}
