package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/response"
)

type paymentFlowService interface {
	RedirectPath() string
	Initiate(ctx context.Context, actor models.Identity, registrationID string, req models.InitiatePaymentRequest) (*models.PaymentFlow, error)
	Get(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error)
	SubmitPayment(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error)
	Retry(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error)
	Close(ctx context.Context, actor models.Identity, flowID string) error
	Approve(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error)
	CancelOrder(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error)
	FailOrder(ctx context.Context, actor models.Identity, flowID string, req models.GatewayCallbackRequest) (*models.PaymentFlow, error)
}

// PaymentHandler drives payment flows for the signed-in parent.
type PaymentHandler struct {
	service paymentFlowService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc paymentFlowService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Initiate godoc
// @Summary Open a payment flow
// @Description Loads the registration and initializes the gateway. Errors that end the flow carry meta.redirect.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body models.InitiatePaymentRequest false "Mode"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id}/payments [post]
func (h *PaymentHandler) Initiate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.InitiatePaymentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid payment payload") {
		return
	}

	flow, err := h.service.Initiate(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, flow)
}

// Get godoc
// @Summary Payment flow state
// @Tags Payments
// @Produce json
// @Param flowId path string true "Flow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	flow, err := h.service.Get(c.Request.Context(), actor, c.Param("flowId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flow, nil)
}

// Submit godoc
// @Summary Pay
// @Description Starts the gateway transaction; poll the flow for the outcome
// @Tags Payments
// @Produce json
// @Param flowId path string true "Flow ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId}/submit [post]
func (h *PaymentHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	flow, err := h.service.SubmitPayment(c.Request.Context(), actor, c.Param("flowId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Accepted(c, flow)
}

// Retry godoc
// @Summary Retry a failed payment flow
// @Tags Payments
// @Produce json
// @Param flowId path string true "Flow ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId}/retry [post]
func (h *PaymentHandler) Retry(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	flow, err := h.service.Retry(c.Request.Context(), actor, c.Param("flowId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flow, nil)
}

// Close godoc
// @Summary Leave a payment flow
// @Description A payment already being captured still lands on the registration
// @Tags Payments
// @Param flowId path string true "Flow ID"
// @Success 204
// @Security BearerAuth
// @Router /payments/{flowId} [delete]
func (h *PaymentHandler) Close(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Close(c.Request.Context(), actor, c.Param("flowId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approve godoc
// @Summary Widget approval callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param payload body models.GatewayCallbackRequest true "Order"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId}/approve [post]
func (h *PaymentHandler) Approve(c *gin.Context) {
	h.callback(c, func(ctx context.Context, actor models.Identity, flowID string, req models.GatewayCallbackRequest) (*models.PaymentFlow, error) {
		return h.service.Approve(ctx, actor, flowID, req.OrderID)
	})
}

// CancelOrder godoc
// @Summary Widget cancellation callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param payload body models.GatewayCallbackRequest true "Order"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId}/cancel [post]
func (h *PaymentHandler) CancelOrder(c *gin.Context) {
	h.callback(c, func(ctx context.Context, actor models.Identity, flowID string, req models.GatewayCallbackRequest) (*models.PaymentFlow, error) {
		return h.service.CancelOrder(ctx, actor, flowID, req.OrderID)
	})
}

// FailOrder godoc
// @Summary Widget error callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param payload body models.GatewayCallbackRequest true "Order and error detail"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{flowId}/error [post]
func (h *PaymentHandler) FailOrder(c *gin.Context) {
	h.callback(c, h.service.FailOrder)
}

func (h *PaymentHandler) callback(c *gin.Context, fn func(context.Context, models.Identity, string, models.GatewayCallbackRequest) (*models.PaymentFlow, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.GatewayCallbackRequest
	if !bindJSON(c, &req, "invalid callback payload") {
		return
	}
	flow, err := fn(c.Request.Context(), actor, c.Param("flowId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flow, nil)
}

// fail writes err, pointing the client back to its registrations when the
// registration can no longer be paid through this flow.
func (h *PaymentHandler) fail(c *gin.Context, err error) {
	for _, exit := range []*appErrors.Error{appErrors.ErrNotFound, appErrors.ErrForbidden, appErrors.ErrAlreadyPaid, appErrors.ErrRegistrationCancelled} {
		if errors.Is(err, exit) {
			response.Error(c, err, map[string]interface{}{"redirect": h.service.RedirectPath()})
			return
		}
	}
	response.Error(c, err)
}
