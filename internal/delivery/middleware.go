package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited returns a client that waits on a token bucket before each send.
// perSecond <= 0 disables limiting.
func RateLimited(next Client, perSecond float64, burst int) Client {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return ClientFunc(func(ctx context.Context, msg Message) Result {
		if err := limiter.Wait(ctx); err != nil {
			return Failure("limiter", fmt.Errorf("%w: wait for send slot: %w", ErrNotAttempted, err))
		}
		return next.Send(ctx, msg)
	})
}

// Recovering converts provider panics into failed results.
func Recovering(provider string, next Client) Client {
	return ClientFunc(func(ctx context.Context, msg Message) (res Result) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("delivery provider panicked", "provider", provider, "panic", r)
				res = Result{Err: &Error{Provider: provider, Message: "provider panicked"}}
			}
		}()
		return next.Send(ctx, msg)
	})
}

// Instrumented records per-provider send metrics.
func Instrumented(provider string, next Client) Client {
	return ClientFunc(func(ctx context.Context, msg Message) Result {
		start := time.Now()
		res := next.Send(ctx, msg)
		recordSend(provider, res, time.Since(start))
		return res
	})
}

// Validating rejects invalid messages before they reach the provider.
func Validating(provider string, next Client) Client {
	return ClientFunc(func(ctx context.Context, msg Message) Result {
		if err := msg.Validate(); err != nil {
			return Result{Err: &Error{Provider: provider, Message: err.Error(), cause: err}}
		}
		return next.Send(ctx, msg)
	})
}

// Wrap applies the standard wrappers in order: validation, panic recovery,
// metrics, rate limiting.
func Wrap(provider string, next Client, perSecond float64, burst int) Client {
	c := Recovering(provider, next)
	c = Instrumented(provider, c)
	c = RateLimited(c, perSecond, burst)
	return Validating(provider, c)
}
