package models

import (
	"encoding/json"
	"time"
)

// LifecycleState is the combined status and paid flag of a registration.
type LifecycleState struct {
	Status RegistrationStatus `json:"status"`
	Paid   bool               `json:"paid"`
}

// Lifecycle is a write of the lifecycle columns. It can only be built through
// the constructors below, so every write lands on a valid combination:
// pending/unpaid, confirmed/paid or cancelled with either paid value.
type Lifecycle struct {
	state LifecycleState

	writeDate   bool
	paymentDate *time.Time
	orderID     *string
	details     json.RawMessage
}

// PaidThroughGateway confirms a registration with the gateway's outcome.
func PaidThroughGateway(orderID string, details json.RawMessage, at time.Time) Lifecycle {
	at = at.UTC()
	return Lifecycle{
		state:       LifecycleState{Status: RegistrationConfirmed, Paid: true},
		writeDate:   true,
		paymentDate: &at,
		orderID:     &orderID,
		details:     details,
	}
}

// MarkedPaid is the administrative override for a payment taken outside the
// gateway. Order id and details are left as stored.
func MarkedPaid(at time.Time) Lifecycle {
	at = at.UTC()
	return Lifecycle{
		state:       LifecycleState{Status: RegistrationConfirmed, Paid: true},
		writeDate:   true,
		paymentDate: &at,
	}
}

// MarkedUnpaid reverts an administrative confirmation back to pending and
// clears the payment date.
func MarkedUnpaid() Lifecycle {
	return Lifecycle{
		state:     LifecycleState{Status: RegistrationPending, Paid: false},
		writeDate: true,
	}
}

// Cancelled ends a registration. The paid flag and payment fields stay as
// they are; cancellation never refunds.
func Cancelled(paid bool) Lifecycle {
	return Lifecycle{state: LifecycleState{Status: RegistrationCancelled, Paid: paid}}
}

// CancelledWithPaid flips the paid flag of a cancelled registration, setting
// or clearing the payment date to match.
func CancelledWithPaid(paid bool, at time.Time) Lifecycle {
	l := Lifecycle{
		state:     LifecycleState{Status: RegistrationCancelled, Paid: paid},
		writeDate: true,
	}
	if paid {
		at = at.UTC()
		l.paymentDate = &at
	}
	return l
}

func (l Lifecycle) State() LifecycleState { return l.state }

func (l Lifecycle) Status() RegistrationStatus { return l.state.Status }

func (l Lifecycle) Paid() bool { return l.state.Paid }

// PaymentDate returns the date to store and whether the column is written at all.
func (l Lifecycle) PaymentDate() (*time.Time, bool) { return l.paymentDate, l.writeDate }

// OrderID returns the gateway order id to store, nil to keep the current one.
func (l Lifecycle) OrderID() *string { return l.orderID }

// Details returns the gateway payload to store, nil to keep the current one.
func (l Lifecycle) Details() json.RawMessage { return l.details }

// Valid reports whether the state is one of the allowed combinations.
func (s LifecycleState) Valid() bool {
	switch s.Status {
	case RegistrationPending:
		return !s.Paid
	case RegistrationConfirmed:
		return s.Paid
	case RegistrationCancelled:
		return true
	}
	return false
}
