package moderation

import (
	"context"
	"fmt"
	"time"
)

// Bucket names a rate-limited activity
type Bucket string

const (
	BucketReports Bucket = "reports"
	BucketActions Bucket = "actions"
)

// Limit is the maximum number of hits allowed in a rolling window
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits returns 10 reports per 24h and 100 actions per hour
func DefaultLimits() map[Bucket]Limit {
	return map[Bucket]Limit{
		BucketReports: {Max: 10, Window: 24 * time.Hour},
		BucketActions: {Max: 100, Window: time.Hour},
	}
}

// WindowStore is an external counter store implementing a sliding window
// log. Hit must check and record in one atomic step: it records a hit at
// now and returns true only when fewer than limit hits fall inside
// (now-window, now]. A rejected hit is not recorded.
type WindowStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error)
}

// RateLimiter gates reports and actions per actor
type RateLimiter struct {
	store  WindowStore
	limits map[Bucket]Limit
	now    func() time.Time
}

// NewRateLimiter creates a limiter. Buckets missing from limits fall back
// to DefaultLimits.
func NewRateLimiter(store WindowStore, limits map[Bucket]Limit) *RateLimiter {
	merged := DefaultLimits()
	for b, l := range limits {
		merged[b] = l
	}
	return &RateLimiter{store: store, limits: merged, now: time.Now}
}

// WithClock returns a copy of l that reads the time from now
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	c := *l
	c.now = now
	return &c
}

// CheckAndIncrement records a hit for actorID in bucket and reports
// whether it was within the limit.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, actorID string, bucket Bucket) (bool, error) {
	if l == nil || l.store == nil {
		return false, fmt.Errorf("rate limiter store is nil")
	}
	if actorID == "" {
		return false, fmt.Errorf("invalid actor id")
	}
	limit, ok := l.limits[bucket]
	if !ok {
		return false, fmt.Errorf("unknown rate limit bucket %q", bucket)
	}
	if limit.Max <= 0 {
		return true, nil
	}
	return l.store.Hit(ctx, bucketKey(bucket, actorID), limit.Max, limit.Window, l.now())
}

func bucketKey(bucket Bucket, actorID string) string {
	return string(bucket) + ":" + actorID
}
