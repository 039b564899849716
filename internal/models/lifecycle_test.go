package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleConstructorsProduceValidStates(t *testing.T) {
	now := time.Now()
	cases := map[string]Lifecycle{
		"gateway":          PaidThroughGateway("TEST_ORDER_1", json.RawMessage(`{"id":"x"}`), now),
		"marked paid":      MarkedPaid(now),
		"marked unpaid":    MarkedUnpaid(),
		"cancelled paid":   Cancelled(true),
		"cancelled unpaid": Cancelled(false),
		"cancelled flip":   CancelledWithPaid(true, now),
	}
	for name, lc := range cases {
		assert.True(t, lc.State().Valid(), name)
	}
}

func TestLifecycleStateValid(t *testing.T) {
	assert.False(t, LifecycleState{Status: RegistrationPending, Paid: true}.Valid())
	assert.False(t, LifecycleState{Status: RegistrationConfirmed, Paid: false}.Valid())
	assert.False(t, LifecycleState{Status: "archived"}.Valid())
}

func TestPaidThroughGatewayCarriesPaymentFields(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lc := PaidThroughGateway("TEST_ORDER_1", json.RawMessage(`{"status":"COMPLETED"}`), at)

	date, write := lc.PaymentDate()
	require.True(t, write)
	require.NotNil(t, date)
	assert.Equal(t, at, *date)
	require.NotNil(t, lc.OrderID())
	assert.Equal(t, "TEST_ORDER_1", *lc.OrderID())
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(lc.Details()))
}

func TestCancelledLeavesPaymentColumnsAlone(t *testing.T) {
	lc := Cancelled(true)
	_, write := lc.PaymentDate()
	assert.False(t, write)
	assert.Nil(t, lc.OrderID())
	assert.Nil(t, lc.Details())
	assert.True(t, lc.Paid())
}

func TestMarkedUnpaidClearsDate(t *testing.T) {
	date, write := MarkedUnpaid().PaymentDate()
	assert.True(t, write)
	assert.Nil(t, date)
}

func TestPaymentDetailsJSON(t *testing.T) {
	raw := json.RawMessage(`{"id":"TEST_PAYMENT_1"}`)
	out, err := json.Marshal(NewPaymentDetails(raw))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	out, err = json.Marshal(NewPaymentDetails(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestCompetitionUpdateTouchesLockedFields(t *testing.T) {
	current := &Competition{Date: "2026-05-01", RegistrationFee: 25}
	name := "Spring Math Bowl"
	sameFee := 25.0
	newDate := "2026-05-02"

	assert.False(t, UpdateCompetitionRequest{Name: &name, RegistrationFee: &sameFee}.TouchesLockedFields(current))
	assert.True(t, UpdateCompetitionRequest{Date: &newDate}.TouchesLockedFields(current))
}
