// Package ratelimit throttles assistant messages per user. Each completion
// turn fans out into several model round trips, so the cap is enforced on
// inbound messages rather than on HTTP requests in general.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/depotkit/concierge/pkg/scope"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Store tracks usage counts per key and window. Implementations must be
// safe for concurrent use.
type Store interface {
	// Increment adds one to the key's counter for the window starting at
	// windowStart and returns the new count. A fresh window starts at 1.
	Increment(ctx context.Context, key string, windowStart time.Time) (int64, error)

	// DeleteExpired drops windows that started before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) error
}

// Limiter admits or rejects messages using a fixed per-user window.
type Limiter struct {
	store     Store
	perWindow int64
	window    time.Duration
	now       func() time.Time
}

func New(store Store, perWindow int64, window time.Duration) *Limiter {
	return &Limiter{
		store:     store,
		perWindow: perWindow,
		window:    window,
		now:       time.Now,
	}
}

// Allow records one message for the scope's user and reports whether it is
// within the limit. Denials include how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, sc scope.Scope) (*Decision, error) {
	now := l.now().UTC()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("%s/%s/%s", sc.TenantID, sc.AccountID, sc.UserID)

	count, err := l.store.Increment(ctx, key, windowStart)
	if err != nil {
		return nil, err
	}
	if count > l.perWindow {
		return &Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}, nil
	}
	return &Decision{Allowed: true, Remaining: l.perWindow - count}, nil
}
