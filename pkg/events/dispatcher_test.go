package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	published []Event
	closed    bool
	closes    int

	// hold, when set, blocks every publish until it is closed.
	hold chan struct{}
}

func (p *flakyPublisher) Publish(_ context.Context, evt Event) error {
	if p.hold != nil {
		<-p.hold
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, evt)
	return nil
}

func (p *flakyPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closes++
	return nil
}

func (p *flakyPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestDispatcherPublishesWithRetry(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond}, nil)
	d.Start(context.Background())

	evt := New(RegistrationConfirmed, "r1", "u1", map[string]any{"order_id": "TEST_ORDER_1"})
	d.Emit(context.Background(), evt)

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	d.Stop()

	assert.True(t, pub.closed)
	assert.Equal(t, evt.ID, pub.published[0].ID)
	assert.Equal(t, RegistrationConfirmed, pub.published[0].Name)
}

func TestDispatcherEmitAfterStopDoesNotPanic(t *testing.T) {
	d := NewDispatcher(nil, DispatcherConfig{}, nil)
	d.Start(context.Background())
	d.Stop()

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), New(RegistrationCreated, "r1", "u1", nil))
	})
}

func TestNewStampsEvent(t *testing.T) {
	evt := New(RegistrationCancelled, "r9", "u9", nil)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "r9", evt.RegistrationID)
	assert.WithinDuration(t, time.Now(), evt.OccurredAt, time.Second)
}

func TestDispatcherStopPublishesQueuedEvents(t *testing.T) {
	pub := &flakyPublisher{hold: make(chan struct{})}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1}, nil)
	d.Start(context.Background())

	for _, id := range []string{"r1", "r2", "r3"} {
		d.Emit(context.Background(), New(RegistrationPaymentSyncFailed, id, "u1", nil))
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	close(pub.hold)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, 3, pub.count())
	assert.True(t, pub.closed)

	d.Stop()
	assert.Equal(t, 1, pub.closes)
}
