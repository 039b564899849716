// Package events publishes registration lifecycle events to a message broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys of the registration lifecycle.
const (
	RegistrationCreated           = "registration.created"
	RegistrationConfirmed         = "registration.confirmed"
	RegistrationCancelled         = "registration.cancelled"
	RegistrationPaymentOverridden = "registration.payment_overridden"
	RegistrationPaymentSyncFailed = "registration.payment_sync_failed"
	RegistrationDeleted           = "registration.deleted"
)

// Event is the JSON body sent to the exchange.
type Event struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	RegistrationID string         `json:"registration_id"`
	ActorID        string         `json:"actor_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Data           map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(name, registrationID, actorID string, data map[string]any) Event {
	return Event{
		ID:             uuid.NewString(),
		Name:           name,
		RegistrationID: registrationID,
		ActorID:        actorID,
		OccurredAt:     time.Now().UTC(),
		Data:           data,
	}
}

// Publisher delivers a single event to the broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event. Used when publishing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
