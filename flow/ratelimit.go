package flow

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles how often nodes are scheduled using
// limiter. It blocks (respecting ctx cancellation) until a token is
// available before letting the step proceed, the same dependency
// ahrav-go-gavel carries for pacing outbound calls.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, name string, input any, next Next) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		return next(ctx, name, input)
	}
}
