// Package agentrunner runs one agent with a deadline and a typed fallback.
// An agent failure or timeout never aborts the pipeline; the caller receives
// the fallback value instead.
package agentrunner

import (
	"context"
	"log/slog"
	"time"
)

// Result distinguishes a completed agent call from a fallback. Fallback is
// true only when the agent did not return: timeout, error or panic. An agent
// that returns a value reporting its own failure is NOT a fallback; the
// caller sees that value verbatim.
type Result[T any] struct {
	Value    T
	Fallback bool
	Err      error
}

// Run executes fn with a deadline. On timeout, error or panic the fallback
// value is returned and the cause logged.
func Run[T any](ctx context.Context, name string, timeout time.Duration, fallback T, fn func(ctx context.Context) (T, error)) Result[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Agent panicked", "agent", name, "panic", r)
				var zero T
				done <- outcome{value: zero, err: context.Canceled}
			}
		}()
		value, err := fn(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("Agent timed out, using fallback",
			"agent", name,
			"timeout", timeout,
			"elapsed", time.Since(start))
		return Result[T]{Value: fallback, Fallback: true, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			slog.Warn("Agent failed, using fallback",
				"agent", name,
				"error", out.err,
				"elapsed", time.Since(start))
			return Result[T]{Value: fallback, Fallback: true, Err: out.err}
		}
		slog.Debug("Agent completed", "agent", name, "elapsed", time.Since(start))
		return Result[T]{Value: out.value}
	}
}
