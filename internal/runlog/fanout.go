package runlog

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Map runs fn over every input concurrently and blocks until all calls have
// returned. The first error to occur is returned; it does not cancel the
// other calls.
func Map[T any](ctx context.Context, inputs []T, fn func(context.Context, T) error) error {
	var group errgroup.Group
	for _, input := range inputs {
		group.Go(func() error {
			return fn(ctx, input)
		})
	}
	return group.Wait()
}

// Collect is Map for functions with a result. Results are in input order and
// the error joins every failure.
func Collect[T, R any](ctx context.Context, inputs []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(inputs))
	errs := make([]error, len(inputs))

	var group errgroup.Group
	for i, input := range inputs {
		group.Go(func() error {
			results[i], errs[i] = fn(ctx, input)
			return nil
		})
	}
	_ = group.Wait()
	return results, errors.Join(errs...)
}
