package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"resonance/internal/tracing"
)

// Expirer retires lapsed restrictions and suspensions
type Expirer interface {
	ExpireRestrictions(ctx context.Context) (int, error)
	ExpireSuspensions(ctx context.Context) (int, error)
}

// Scheduler runs the expiration job on a fixed interval. A failed or
// interrupted run is picked up again on the next tick.
type Scheduler struct {
	expirer  Expirer
	interval time.Duration
}

// NewScheduler creates a scheduler. A non-positive interval defaults to one hour.
func NewScheduler(expirer Expirer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{expirer: expirer, interval: interval}
}

// RunOnce performs a single expiration pass over both restriction kinds.
// Suspensions are still processed when the restriction pass fails.
func (s *Scheduler) RunOnce(ctx context.Context) (restrictions, suspensions int, err error) {
	ctx, span := tracing.JobSpan(ctx, "expire")
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	restrictions, rErr := s.expirer.ExpireRestrictions(ctx)
	if rErr != nil {
		log.Error().Err(rErr).Msg("moderation: restriction expiration failed")
	}
	suspensions, sErr := s.expirer.ExpireSuspensions(ctx)
	if sErr != nil {
		log.Error().Err(sErr).Msg("moderation: suspension expiration failed")
	}
	if rErr != nil {
		return restrictions, suspensions, rErr
	}
	return restrictions, suspensions, sErr
}

// Run executes an immediate pass and then one per interval until ctx is
// cancelled. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("moderation: expiration scheduler started")

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("moderation: expiration scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	restrictions, suspensions, err := s.RunOnce(ctx)
	if err != nil {
		return
	}
	log.Debug().
		Int("restrictions", restrictions).
		Int("suspensions", suspensions).
		Msg("moderation: expiration pass complete")
}
