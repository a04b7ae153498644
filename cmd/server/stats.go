package main

import (
	"context"
	"sync"
	"time"

	"resonance/internal/metrics"
	"resonance/internal/moderation"

	"github.com/rs/zerolog/log"
)

// statsLoader is the slice of the service the collector reads
type statsLoader interface {
	Stats(ctx context.Context) (moderation.Stats, error)
}

// statsCache loads the moderation figures once per collector pass and
// serves every gauge from that snapshot
type statsCache struct {
	ctx    context.Context
	loader statsLoader
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
	stats    moderation.Stats
	ok       bool
}

func (c *statsCache) get() (moderation.Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.loadedAt.IsZero() && now.Sub(c.loadedAt) < c.maxAge {
		return c.stats, c.ok
	}

	stats, err := c.loader.Stats(c.ctx)
	c.loadedAt = now
	if err != nil {
		log.Warn().Err(err).Msg("moderation: failed to load stats for metrics")
		c.stats, c.ok = moderation.Stats{}, false
		return c.stats, false
	}
	c.stats, c.ok = stats, true
	return stats, true
}

func newStatsSource(ctx context.Context, loader statsLoader) metrics.StatsSource {
	cache := &statsCache{ctx: ctx, loader: loader, maxAge: 5 * time.Second, now: time.Now}
	return cache.source()
}

func (c *statsCache) source() metrics.StatsSource {
	return metrics.StatsSource{
		ReportsByStatus: func() (map[string]int, bool) {
			s, ok := c.get()
			return stringKeys(s.ReportsByStatus), ok
		},
		ActiveRestrictionsByType: func() (map[string]int, bool) {
			s, ok := c.get()
			return stringKeys(s.ActiveRestrictionsByType), ok
		},
		ActionsByType: func() (map[string]int, bool) {
			s, ok := c.get()
			return stringKeys(s.ActionsByType), ok
		},
		RevokedActions: func() (int, bool) {
			s, ok := c.get()
			return s.RevokedActions, ok
		},
		PendingNotifications: func() (int, bool) {
			s, ok := c.get()
			return s.PendingNotifications, ok
		},
		ExpiredAwaitingDeactivation: func() (int, bool) {
			s, ok := c.get()
			return s.ExpiredAwaitingDeactivation, ok
		},
	}
}

func stringKeys[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
