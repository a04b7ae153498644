// Package notify delivers moderation events from the store's outbox to
// the notification collaborator.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"resonance/internal/metrics"
	"resonance/internal/moderation"
	"resonance/internal/tracing"
)

// Outbox is the durable queue of undelivered events
type Outbox interface {
	PendingNotifications(ctx context.Context, limit int) ([]moderation.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// Notifier receives events. Delivery is at-least-once, so Notify must be
// idempotent on the event id.
type Notifier interface {
	Notify(ctx context.Context, n moderation.Notification) error
}

// LogNotifier logs each event and forwards it to Next when set
type LogNotifier struct {
	Next Notifier
}

func (l LogNotifier) Notify(ctx context.Context, n moderation.Notification) error {
	log.Info().
		Str("id", n.ID).
		Str("user_id", n.UserID).
		Str("kind", string(n.Kind)).
		Str("message", n.Message).
		Msg("moderation: notification")
	if l.Next == nil {
		return nil
	}
	return l.Next.Notify(ctx, n)
}

// Dispatcher drains the outbox in batches
type Dispatcher struct {
	outbox    Outbox
	notifier  Notifier
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. Non-positive interval and batch size
// default to 5 seconds and 100.
func NewDispatcher(outbox Outbox, notifier Notifier, interval time.Duration, batchSize int) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		outbox:    outbox,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// RunOnce delivers one batch and returns how many events were delivered.
// An event the notifier rejects stays pending and is retried on the next
// pass; the rest of the batch is still attempted.
func (d *Dispatcher) RunOnce(ctx context.Context) (delivered int, err error) {
	ctx, span := tracing.JobSpan(ctx, "notify")
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	pending, err := d.outbox.PendingNotifications(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending notifications: %w", err)
	}

	var firstErr error
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			metrics.NotificationsDeliveredTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("id", n.ID).Str("user_id", n.UserID).Msg("moderation: notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := d.outbox.MarkDelivered(ctx, n.ID, d.now().UTC()); err != nil {
			return delivered, fmt.Errorf("mark notification %s delivered: %w", n.ID, err)
		}
		metrics.NotificationsDeliveredTotal.WithLabelValues("delivered").Inc()
		delivered++
	}
	return delivered, firstErr
}

// Run drains the outbox every interval until ctx is cancelled. It always
// returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().Dur("interval", d.interval).Msg("moderation: notification dispatcher started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if n, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int("delivered", n).Msg("moderation: notification pass failed")
		} else if n > 0 {
			log.Debug().Int("delivered", n).Msg("moderation: notifications delivered")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("moderation: notification dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}
