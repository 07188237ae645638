package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError names the stage that outlived its budget. It matches
// context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Stage  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: exceeded budget of %v", e.Stage, e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// Within runs fn under a budget and hands back its value. fn keeps running
// in the background after the budget expires, so it must honour ctx. A zero
// budget runs fn inline.
func Within[T any](ctx context.Context, budget time.Duration, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(bounded)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		return o.val, o.err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: caller gave up: %w", stage, err)
		}
		return zero, &TimeoutError{Stage: stage, Budget: budget}
	}
}

// WithTimeout is Within for calls that only return an error.
func WithTimeout(ctx context.Context, budget time.Duration, stage string, fn func(ctx context.Context) error) error {
	_, err := Within(ctx, budget, stage, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
