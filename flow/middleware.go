package flow

import (
	"context"
	"fmt"
)

// Next invokes the remainder of the middleware chain with
// possibly-redirected name and input. For the last middleware, next only
// records the final (name, input) pair; the node executor runs with that
// pair after the whole chain has returned. A middleware that wants to proceed unchanged calls
// next(ctx, name, input) with the values it received; passing different
// values rewrites the step. A middleware that never calls next vetoes
// the step entirely — the node never runs.
//
// This is the idiomatic Go shape for an ordered interceptor chain (the
// same composition net/http middleware uses): the source's "next(route?)
// with an optional argument" becomes an explicit pair of arguments,
// since Go has no optional parameters.
type Next func(ctx context.Context, name string, input any) error

// Middleware transforms the (name, input) pair for a scheduled step
// before it reaches the node executor.
type Middleware func(ctx context.Context, name string, input any, next Next) error

// runMiddlewareChain drives name/input through chain. ran reports
// whether some middleware eventually called the terminal continuation
// (false means a middleware vetoed the step by never calling next).
func runMiddlewareChain(ctx context.Context, chain []Middleware, name string, input any) (outName string, outInput any, ran bool, err error) {
	origName := name
	origInput := input

	idx := 0
	var next Next
	next = func(nctx context.Context, n string, in any) error {
		if idx >= len(chain) {
			outName, outInput, ran = n, in, true
			return nil
		}
		mw := chain[idx]
		idx++
		return callMiddleware(mw, nctx, n, in, next, origName, origInput)
	}

	err = next(ctx, name, input)
	return outName, outInput, ran, err
}

func callMiddleware(mw Middleware, ctx context.Context, name string, input any, next Next, origName string, origInput any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExecError{
				Code:    CodeMiddlewareFail,
				NodeID:  origName,
				Message: fmt.Sprintf("middleware panic: %v", r),
				Context: map[string]any{"input": origInput},
			}
		}
	}()

	err = mw(ctx, name, input, next)
	if err == nil {
		return nil
	}

	if ee, ok := err.(*ExecError); ok && (ee.Code == CodeExit || ee.Code == CodeMiddlewareFail) {
		return err
	}
	return &ExecError{
		Code:    CodeMiddlewareFail,
		NodeID:  origName,
		Message: err.Error(),
		Cause:   err,
		Context: map[string]any{"input": origInput},
	}
}

// exitMiddleware is installed first in every Runnable's chain. It checks
// the Runnable's exit_reason and, if set, fails the step with CodeExit
// instead of letting the node execute — the built-in cooperative
// cancellation point described in spec.md §4.3/§4.5.
func exitMiddleware(r *Runnable) Middleware {
	return func(ctx context.Context, name string, input any, next Next) error {
		if reason := r.exitReason.Load(); reason != nil {
			return &ExecError{
				Code:    CodeExit,
				NodeID:  name,
				Message: fmt.Sprintf("execution exited: %s", *reason),
				Context: map[string]any{"reason": *reason},
			}
		}
		return next(ctx, name, input)
	}
}
