// Package gateway adapts the PayPal Orders API and a local simulation to a
// single create-then-capture contract.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

// Messages surfaced to users when an order does not complete.
const (
	MsgInitFailed     = "Failed to initialize PayPal SDK"
	MsgCreateFailed   = "Failed to create PayPal order"
	MsgCaptureFailed  = "Failed to capture payment"
	MsgPaymentError   = "PayPal payment error occurred"
	MsgCancelled      = "Payment was cancelled"
	MsgAbandoned      = "Payment was abandoned"
	defaultBrandName  = "RSM Math Competition"
	defaultCurrency   = "USD"
	defaultSimulation = 2 * time.Second
)

// ErrUnknownOrder is returned by widget callbacks for orders that are not
// awaiting a decision.
var ErrUnknownOrder = errors.New("order is not awaiting approval")

// ErrLiveNotConfigured is returned when live mode is requested without credentials.
var ErrLiveNotConfigured = errors.New("live payments are not configured")

// Result is the outcome of one payment attempt. Failures are carried in
// Error rather than returned.
type Result struct {
	Success bool            `json:"success"`
	OrderID string          `json:"order_id,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func failure(orderID, msg string) Result {
	return Result{OrderID: orderID, Error: msg}
}

// CreatedFunc receives the order id and the approval link the payer must open.
type CreatedFunc func(orderID, approvalURL string)

// Config tunes the adapter.
type Config struct {
	Currency      string
	BrandName     string
	SimulateDelay time.Duration
}

// Adapter runs live orders against PayPal and simulated orders locally.
type Adapter struct {
	client orderClient
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]chan Result
}

// NewAdapter builds an adapter. client may be nil, in which case only
// simulated payments are available.
func NewAdapter(client *PayPalClient, cfg Config, logger *zap.Logger) *Adapter {
	if client == nil {
		return newAdapter(nil, cfg, logger)
	}
	return newAdapter(client, cfg, logger)
}

func newAdapter(client orderClient, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.BrandName == "" {
		cfg.BrandName = defaultBrandName
	}
	if cfg.SimulateDelay <= 0 {
		cfg.SimulateDelay = defaultSimulation
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]chan Result),
	}
}

// Initialize prepares the gateway for mode. Simulated mode needs nothing;
// live mode obtains an OAuth token to prove the credentials work.
func (a *Adapter) Initialize(ctx context.Context, mode models.PaymentMode) error {
	if mode != models.PaymentModeLive {
		return nil
	}
	if a.client == nil {
		return ErrLiveNotConfigured
	}
	if err := a.client.Authenticate(ctx); err != nil {
		a.logger.Warn("paypal authentication failed", zap.Error(err))
		return fmt.Errorf("authenticate paypal: %w", err)
	}
	return nil
}

// CreateAndCapture creates a live order, reports its approval link through
// onCreated and blocks until a widget callback settles it or ctx ends.
func (a *Adapter) CreateAndCapture(ctx context.Context, order models.OrderRequest, onCreated CreatedFunc) Result {
	if a.client == nil {
		return failure("", MsgInitFailed)
	}

	currency := order.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	description := order.Description
	if description == "" {
		description = fmt.Sprintf("Registration for %s - %s", order.CompetitionName, order.StudentName)
	}

	created, err := a.client.CreateOrder(ctx, createOrderInput{
		Amount:      strconv.FormatFloat(order.Amount, 'f', 2, 64),
		Currency:    currency,
		Description: description,
		CustomID:    order.RegistrationID,
		InvoiceID:   fmt.Sprintf("REG-%s-%d", order.RegistrationID, a.now().UnixMilli()),
		BrandName:   a.cfg.BrandName,
	})
	if err != nil {
		a.logger.Warn("paypal create order failed", zap.String("registration_id", order.RegistrationID), zap.Error(err))
		return failure("", MsgCreateFailed)
	}

	ch := make(chan Result, 1)
	a.mu.Lock()
	a.pending[created.OrderID] = ch
	a.mu.Unlock()

	if onCreated != nil {
		onCreated(created.OrderID, created.ApprovalURL)
	}

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		a.take(created.OrderID)
		return failure(created.OrderID, MsgAbandoned)
	}
}

// OnApprove captures an approved order and settles the waiting attempt.
func (a *Adapter) OnApprove(ctx context.Context, orderID string) error {
	ch := a.take(orderID)
	if ch == nil {
		return ErrUnknownOrder
	}

	captured, err := a.client.CaptureOrder(ctx, orderID)
	switch {
	case err != nil:
		a.logger.Warn("paypal capture failed", zap.String("order_id", orderID), zap.Error(err))
		ch <- failure(orderID, MsgCaptureFailed)
	case captured.Status != "COMPLETED":
		a.logger.Warn("paypal capture not completed", zap.String("order_id", orderID), zap.String("status", captured.Status))
		ch <- failure(orderID, MsgCaptureFailed)
	default:
		ch <- Result{Success: true, OrderID: orderID, Details: captured.Details}
	}
	return nil
}

// OnCancel settles the attempt as cancelled by the payer.
func (a *Adapter) OnCancel(orderID string) error {
	ch := a.take(orderID)
	if ch == nil {
		return ErrUnknownOrder
	}
	ch <- failure(orderID, MsgCancelled)
	return nil
}

// OnError settles the attempt as failed inside the widget.
func (a *Adapter) OnError(orderID, detail string) error {
	ch := a.take(orderID)
	if ch == nil {
		return ErrUnknownOrder
	}
	if detail != "" {
		a.logger.Warn("paypal widget error", zap.String("order_id", orderID), zap.String("detail", detail))
	}
	ch <- failure(orderID, MsgPaymentError)
	return nil
}

// Simulate succeeds after the configured delay with a synthetic order.
func (a *Adapter) Simulate(ctx context.Context, order models.OrderRequest) Result {
	timer := time.NewTimer(a.cfg.SimulateDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return failure("", MsgAbandoned)
	case <-timer.C:
	}

	stamp := a.now().UnixMilli()
	currency := order.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	details, _ := json.Marshal(simulatedCapture{
		ID:     fmt.Sprintf("TEST_PAYMENT_%d", stamp),
		Status: "COMPLETED",
		Payer: simulatedPayer{
			EmailAddress: "test@example.com",
			Name:         simulatedName{GivenName: "Test", Surname: "User"},
		},
		PurchaseUnits: []simulatedUnit{{Amount: simulatedAmount{
			Value:        strconv.FormatFloat(order.Amount, 'f', 2, 64),
			CurrencyCode: currency,
		}}},
	})
	return Result{
		Success: true,
		OrderID: fmt.Sprintf("TEST_ORDER_%d", stamp),
		Details: details,
	}
}


func (a *Adapter) take(orderID string) chan Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.pending[orderID]
	if !ok {
		return nil
	}
	delete(a.pending, orderID)
	return ch
}

type simulatedCapture struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Payer         simulatedPayer  `json:"payer"`
	PurchaseUnits []simulatedUnit `json:"purchase_units"`
}

type simulatedPayer struct {
	EmailAddress string        `json:"email_address"`
	Name         simulatedName `json:"name"`
}

type simulatedName struct {
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
}

type simulatedUnit struct {
	Amount simulatedAmount `json:"amount"`
}

type simulatedAmount struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}
