package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/plutov/paypal/v4"
)

type createOrderInput struct {
	Amount      string
	Currency    string
	Description string
	CustomID    string
	InvoiceID   string
	BrandName   string
}

type createdOrder struct {
	OrderID     string
	ApprovalURL string
}

type capturedOrder struct {
	Status  string
	Details json.RawMessage
}

type orderClient interface {
	Authenticate(ctx context.Context) error
	CreateOrder(ctx context.Context, in createOrderInput) (*createdOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*capturedOrder, error)
}

// PayPalClient talks to the PayPal Orders v2 API.
type PayPalClient struct {
	api *paypal.Client
}

// NewPayPalClient builds a client for the sandbox or live environment.
func NewPayPalClient(clientID, secret, environment string) (*PayPalClient, error) {
	if clientID == "" || secret == "" {
		return nil, ErrLiveNotConfigured
	}
	base := paypal.APIBaseSandBox
	if environment == "live" || environment == "production" {
		base = paypal.APIBaseLive
	}
	api, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	return &PayPalClient{api: api}, nil
}

func (c *PayPalClient) Authenticate(ctx context.Context) error {
	_, err := c.api.GetAccessToken(ctx)
	return err
}

func (c *PayPalClient) CreateOrder(ctx context.Context, in createOrderInput) (*createdOrder, error) {
	units := []paypal.PurchaseUnitRequest{{
		Amount: &paypal.PurchaseUnitAmount{
			Currency: in.Currency,
			Value:    in.Amount,
		},
		Description: in.Description,
		CustomID:    in.CustomID,
		InvoiceID:   in.InvoiceID,
	}}
	appCtx := &paypal.ApplicationContext{
		BrandName:   in.BrandName,
		LandingPage: "NO_PREFERENCE",
		UserAction:  "PAY_NOW",
	}

	order, err := c.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, err
	}

	out := &createdOrder{OrderID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			out.ApprovalURL = link.Href
			break
		}
	}
	if out.ApprovalURL == "" {
		return nil, errors.New("paypal order has no approval link")
	}
	return out, nil
}

func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*capturedOrder, error) {
	resp, err := c.api.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode capture: %w", err)
	}
	return &capturedOrder{Status: string(resp.Status), Details: details}, nil
}
