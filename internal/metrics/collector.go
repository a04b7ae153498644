package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// A nil function leaves its gauge untouched. A function returning ok=false
// indicates the source is unavailable for this pass.
type StatsSource struct {
	ReportsByStatus             func() (map[string]int, bool)
	ActiveRestrictionsByType    func() (map[string]int, bool)
	ActionsByType               func() (map[string]int, bool)
	RevokedActions              func() (int, bool)
	PendingNotifications        func() (int, bool)
	ExpiredAwaitingDeactivation func() (int, bool)
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	setVec := func(fn func() (map[string]int, bool), set func(string, float64)) {
		if fn == nil {
			return
		}
		counts, ok := fn()
		if !ok {
			return
		}
		for label, count := range counts {
			set(label, float64(count))
		}
	}
	setOne := func(fn func() (int, bool), set func(float64)) {
		if fn == nil {
			return
		}
		if n, ok := fn(); ok {
			set(float64(n))
		}
	}

	setVec(src.ReportsByStatus, func(l string, v float64) { ReportsByStatus.WithLabelValues(l).Set(v) })
	setVec(src.ActiveRestrictionsByType, func(l string, v float64) { ActiveRestrictions.WithLabelValues(l).Set(v) })
	setVec(src.ActionsByType, func(l string, v float64) { ActionsByType.WithLabelValues(l).Set(v) })
	setOne(src.RevokedActions, RevokedActions.Set)
	setOne(src.PendingNotifications, PendingNotifications.Set)
	setOne(src.ExpiredAwaitingDeactivation, ExpiredAwaitingDeactivation.Set)
}
