package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

type fakeOrderClient struct {
	mu         sync.Mutex
	authErr    error
	createErr  error
	captureErr error
	capture    *capturedOrder
	created    []createOrderInput
}

func (f *fakeOrderClient) Authenticate(context.Context) error { return f.authErr }

func (f *fakeOrderClient) CreateOrder(_ context.Context, in createOrderInput) (*createdOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	return &createdOrder{OrderID: "ORDER-1", ApprovalURL: "https://paypal.test/approve/ORDER-1"}, nil
}

func (f *fakeOrderClient) CaptureOrder(context.Context, string) (*capturedOrder, error) {
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return f.capture, nil
}

func sampleOrder() models.OrderRequest {
	return models.OrderRequest{
		Amount:          25,
		RegistrationID:  "r1",
		StudentName:     "Ada",
		CompetitionName: "Spring Bowl",
	}
}

func fixedClock() time.Time { return time.UnixMilli(1767225600000) }

func TestSimulateSucceedsAfterDelay(t *testing.T) {
	a := newAdapter(nil, Config{SimulateDelay: 10 * time.Millisecond}, nil)
	a.now = fixedClock

	start := time.Now()
	res := a.Simulate(context.Background(), sampleOrder())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	require.True(t, res.Success)
	assert.Equal(t, "TEST_ORDER_1767225600000", res.OrderID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(res.Details, &details))
	assert.Equal(t, "TEST_PAYMENT_1767225600000", details["id"])
	assert.Equal(t, "COMPLETED", details["status"])
	units := details["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "25.00", amount["value"])
	assert.Equal(t, "USD", amount["currency_code"])
}

func TestSimulateHonoursContext(t *testing.T) {
	a := newAdapter(nil, Config{SimulateDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Simulate(ctx, sampleOrder())
	assert.False(t, res.Success)
}

func TestInitialize(t *testing.T) {
	assert.NoError(t, newAdapter(nil, Config{}, nil).Initialize(context.Background(), models.PaymentModeSimulated))
	assert.ErrorIs(t, newAdapter(nil, Config{}, nil).Initialize(context.Background(), models.PaymentModeLive), ErrLiveNotConfigured)

	client := &fakeOrderClient{authErr: errors.New("401")}
	assert.Error(t, newAdapter(client, Config{}, nil).Initialize(context.Background(), models.PaymentModeLive))
}

func TestNewAdapterWithoutClientIsSimulatedOnly(t *testing.T) {
	a := NewAdapter(nil, Config{}, nil)
	assert.ErrorIs(t, a.Initialize(context.Background(), models.PaymentModeLive), ErrLiveNotConfigured)
}

func runLive(t *testing.T, a *Adapter) (<-chan Result, string) {
	t.Helper()
	created := make(chan string, 1)
	done := make(chan Result, 1)
	go func() {
		done <- a.CreateAndCapture(context.Background(), sampleOrder(), func(orderID, approvalURL string) {
			assert.True(t, strings.HasSuffix(approvalURL, orderID))
			created <- orderID
		})
	}()
	select {
	case id := <-created:
		return done, id
	case <-time.After(time.Second):
		t.Fatal("order was not created")
	}
	return nil, ""
}

func TestCreateAndCaptureApproved(t *testing.T) {
	client := &fakeOrderClient{capture: &capturedOrder{Status: "COMPLETED", Details: json.RawMessage(`{"id":"CAP-1"}`)}}
	a := newAdapter(client, Config{}, nil)
	a.now = fixedClock

	done, orderID := runLive(t, a)
	require.NoError(t, a.OnApprove(context.Background(), orderID))

	res := <-done
	require.True(t, res.Success)
	assert.Equal(t, "ORDER-1", res.OrderID)
	assert.JSONEq(t, `{"id":"CAP-1"}`, string(res.Details))

	in := client.created[0]
	assert.Equal(t, "25.00", in.Amount)
	assert.Equal(t, "USD", in.Currency)
	assert.Equal(t, "Registration for Spring Bowl - Ada", in.Description)
	assert.Equal(t, "r1", in.CustomID)
	assert.Equal(t, "REG-r1-1767225600000", in.InvoiceID)
	assert.Equal(t, "RSM Math Competition", in.BrandName)
	assert.Zero(t, pendingOrders(a))
}

func TestCreateAndCaptureCancelled(t *testing.T) {
	a := newAdapter(&fakeOrderClient{}, Config{}, nil)
	done, orderID := runLive(t, a)

	require.NoError(t, a.OnCancel(orderID))
	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, MsgCancelled, res.Error)

	assert.ErrorIs(t, a.OnCancel(orderID), ErrUnknownOrder)
}

func TestCreateAndCaptureWidgetError(t *testing.T) {
	a := newAdapter(&fakeOrderClient{}, Config{}, nil)
	done, orderID := runLive(t, a)

	require.NoError(t, a.OnError(orderID, "card declined"))
	res := <-done
	assert.Equal(t, MsgPaymentError, res.Error)
}

func TestCreateAndCaptureCaptureFails(t *testing.T) {
	a := newAdapter(&fakeOrderClient{captureErr: errors.New("422")}, Config{}, nil)
	done, orderID := runLive(t, a)

	require.NoError(t, a.OnApprove(context.Background(), orderID))
	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, MsgCaptureFailed, res.Error)
}

func TestCreateAndCaptureCreateFails(t *testing.T) {
	a := newAdapter(&fakeOrderClient{createErr: errors.New("500")}, Config{}, nil)
	called := false
	res := a.CreateAndCapture(context.Background(), sampleOrder(), func(string, string) { called = true })
	assert.False(t, called)
	assert.Equal(t, MsgCreateFailed, res.Error)
}

func TestCreateAndCaptureAbandonedOnContext(t *testing.T) {
	a := newAdapter(&fakeOrderClient{}, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	res := a.CreateAndCapture(ctx, sampleOrder(), func(string, string) { cancel() })
	assert.Equal(t, MsgAbandoned, res.Error)
	assert.Zero(t, pendingOrders(a))
}

func pendingOrders(a *Adapter) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
