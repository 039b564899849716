package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/pkg/jobs"
)

// Dispatcher hands events to a background queue so callers never wait on the
// broker. Failed publishes are retried by the queue; an event that cannot be
// queued is logged and dropped.
type Dispatcher struct {
	queue     *jobs.Queue[Event]
	publisher Publisher
	logger    *zap.Logger
	stopOnce  sync.Once
}

// DispatcherConfig tunes the background queue.
type DispatcherConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	d := &Dispatcher{publisher: publisher, logger: logger}
	d.queue = jobs.NewQueue("events", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop publishes the events already queued, then closes the publisher.
// Later calls do nothing.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.queue.Stop()
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("close event publisher", zap.Error(err))
		}
	})
}

// Emit queues evt for publication.
func (d *Dispatcher) Emit(ctx context.Context, evt Event) {
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := d.queue.Enqueue(enqueueCtx, jobs.Job[Event]{ID: evt.ID, Kind: evt.Name, Payload: evt}); err != nil {
		d.logger.Warn("drop event",
			zap.String("event", evt.Name),
			zap.String("registration_id", evt.RegistrationID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job[Event]) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.publisher.Publish(publishCtx, job.Payload)
}
