// Package ratelimiter implements C1, the cross-worker sliding-window rate
// limiter the delivery engine gates every provider invocation on.
package ratelimiter

import (
	"context"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
)

// Limiter is the C1 contract: acquire returns whether a delivery attempt on
// channel may proceed right now. Implementations must fail closed — when
// the coordination store is unreachable, Acquire returns false rather than
// an unbounded error, since the caller's only correct response to either is
// "requeue" (spec.md §2 failure mode).
type Limiter interface {
	Acquire(ctx context.Context, channel config.Channel) (bool, error)
}
