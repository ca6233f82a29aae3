// Package tx defines transaction management abstractions so domain services
// stay independent of the database driver.
package tx

import (
	"context"
)

// Manager runs work inside a database transaction.
type Manager interface {
	// RunInTransaction executes fn within a transaction. An error from fn rolls back,
	// success commits. Nested calls reuse the transaction already in ctx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RetryingManager extends Manager with bounded retry for lock acquisition failures
// (serialization failures, deadlocks, NOWAIT lock misses).
type RetryingManager interface {
	Manager

	// RunWithLockRetry runs fn in a fresh transaction, retrying the whole transaction
	// when it fails because a lock could not be acquired.
	RunWithLockRetry(ctx context.Context, fn func(ctx context.Context) error) error
}

// Func adapts a plain function to Manager. Used where no database is involved.
type Func func(ctx context.Context, fn func(ctx context.Context) error) error

// RunInTransaction implements Manager.
func (f Func) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// RunWithLockRetry implements RetryingManager without retrying.
func (f Func) RunWithLockRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// Direct runs fn without any transaction.
var Direct Func = func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
