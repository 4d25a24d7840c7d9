// Package provider implements C4, the registry mapping a delivery channel
// to the capability that actually sends a notification (SMTP, an SMS
// gateway, a push service).
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
)

// Result is a provider invocation's outcome. Providers must not raise —
// any exceptional condition is reported as Success=false with Details
// describing why (spec.md §4.4).
type Result struct {
	Success bool
	Details string

	// Retryable classifies whether the delivery engine should schedule a
	// further attempt on failure. Additive beyond the spec's minimum
	// boolean contract (spec.md §4.4 permits a classification extension).
	// Every concrete sender in this package sets it explicitly on every
	// failure path — there is no implicit default, since Go's zero value
	// for bool is false and would silently misclassify an unset field as
	// non-retryable.
	Retryable bool
}

// Sender is the capability a single channel's provider implements.
type Sender interface {
	Send(ctx context.Context, n store.Notification) Result
}

// ErrUnknownChannel is returned by Registry.Send for a channel with no
// registered sender — a programmer error, per spec.md §4.4.
type ErrUnknownChannel struct {
	Channel config.Channel
}

func (e ErrUnknownChannel) Error() string {
	return fmt.Sprintf("provider: no sender registered for channel %q", e.Channel)
}

// Registry maps channel to Sender, wrapping every invocation in a circuit
// breaker so a provider that is failing hard does not get hammered with
// further attempts at its own timeout cost.
type Registry struct {
	senders  map[config.Channel]Sender
	breakers map[config.Channel]*gobreaker.CircuitBreaker
}

// NewRegistry builds an empty registry; call Register for each channel.
func NewRegistry() *Registry {
	return &Registry{
		senders:  make(map[config.Channel]Sender),
		breakers: make(map[config.Channel]*gobreaker.CircuitBreaker),
	}
}

// Register wires sender as the capability for channel, with its own
// circuit breaker so one channel tripping does not affect siblings.
func (r *Registry) Register(channel config.Channel, sender Sender) {
	r.senders[channel] = sender
	r.breakers[channel] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(channel),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Send invokes the registered provider for n.Channel through its circuit
// breaker. An open breaker is reported as a retryable failure rather than
// propagated as an error, so callers (the delivery engine) handle it with
// the same backoff-and-retry path as any other provider failure.
func (r *Registry) Send(ctx context.Context, n store.Notification) (Result, error) {
	sender, ok := r.senders[n.Channel]
	if !ok {
		return Result{}, ErrUnknownChannel{Channel: n.Channel}
	}
	breaker := r.breakers[n.Channel]

	out, err := breaker.Execute(func() (interface{}, error) {
		res := sender.Send(ctx, n)
		if !res.Success {
			return res, fmt.Errorf("provider declined: %s", res.Details)
		}
		return res, nil
	})
	if err != nil {
		if res, ok := out.(Result); ok {
			return res, nil
		}
		return Result{Success: false, Details: err.Error(), Retryable: true}, nil
	}
	return out.(Result), nil
}
