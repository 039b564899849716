package models

import "time"

// PaymentMode selects the live gateway or the local simulation.
type PaymentMode string

const (
	PaymentModeLive      PaymentMode = "live"
	PaymentModeSimulated PaymentMode = "simulated"
)

// FlowState is a step of the payment flow.
type FlowState string

const (
	FlowLoading         FlowState = "LOADING"
	FlowReady           FlowState = "READY"
	FlowAwaitingGateway FlowState = "AWAITING_GATEWAY"
	FlowProcessing      FlowState = "PROCESSING"
	FlowCompleted       FlowState = "COMPLETED"
	FlowError           FlowState = "ERROR"
)

// FlowErrorKind classifies a flow in the ERROR state. Values match the error
// codes returned by the API.
type FlowErrorKind string

const (
	FlowErrGatewayInitFailed     FlowErrorKind = "GATEWAY_INIT_FAILED"
	FlowErrGateway               FlowErrorKind = "GATEWAY_ERROR"
	FlowErrPostPaymentSyncFailed FlowErrorKind = "POST_PAYMENT_SYNC_FAILED"
)

// Retryable reports whether a retry may replay the flow from READY.
func (k FlowErrorKind) Retryable() bool {
	return k == FlowErrGatewayInitFailed || k == FlowErrGateway
}

// FlowError is the failure a flow is parked on.
type FlowError struct {
	Kind      FlowErrorKind `json:"kind"`
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
}

// FlowRedirect is a navigation the client should perform after a delay.
type FlowRedirect struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// OrderRequest describes a single payment attempt.
type OrderRequest struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description,omitempty"`
	RegistrationID  string  `json:"registration_id"`
	StudentName     string  `json:"student_name"`
	CompetitionName string  `json:"competition_name"`
}

// InitiatePaymentRequest opens a payment flow for a registration.
type InitiatePaymentRequest struct {
	Mode PaymentMode `json:"mode" validate:"omitempty,oneof=live simulated"`
}

// GatewayCallbackRequest carries the widget's callback data.
type GatewayCallbackRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Detail  string `json:"detail"`
}

// PaymentFlow is a point-in-time view of a payment flow returned to clients.
type PaymentFlow struct {
	ID             string        `json:"id"`
	RegistrationID string        `json:"registration_id"`
	ParentID       string        `json:"parent_id"`
	Mode           PaymentMode   `json:"mode"`
	State          FlowState     `json:"state"`
	Order          *OrderRequest `json:"order,omitempty"`
	OrderID        string        `json:"order_id,omitempty"`
	ApprovalURL    string        `json:"approval_url,omitempty"`
	Error          *FlowError    `json:"error,omitempty"`
	Redirect       *FlowRedirect `json:"redirect,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
