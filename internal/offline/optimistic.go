package offline

import (
	"context"

	"go.uber.org/zap"
)

// Operation is one optimistic write.
type Operation[T any] struct {
	// Entity and Name label log lines and rollback errors.
	Entity string
	Name   string

	// Local applies the write to the cache and persists it as pending.
	Local func(ctx context.Context) (T, error)
	// Remote submits the locally written value. On success it persists the
	// result as synced.
	Remote func(ctx context.Context, local T) (T, error)
	// Rollback restores the cache to its state before Local.
	Rollback func(ctx context.Context) error

	Connected bool
}

// Apply runs op: the local write first, then the remote write when
// connected. If the remote write fails the rollback runs and the remote
// error is returned; a failing rollback is logged as a RollbackError and
// does not replace the remote error.
//
// Concurrent operations on the same entity are not serialized here.
func Apply[T any](ctx context.Context, logger *zap.Logger, op Operation[T]) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	local, err := op.Local(ctx)
	if err != nil {
		return local, err
	}

	if !op.Connected || op.Remote == nil {
		return local, nil
	}

	result, remoteErr := op.Remote(ctx, local)
	if remoteErr == nil {
		return result, nil
	}

	if op.Rollback != nil {
		if err := op.Rollback(ctx); err != nil {
			rbErr := &RollbackError{Op: op.Name, Entity: op.Entity, Cause: remoteErr, Err: err}
			logger.Error("rollback failed",
				zap.String("entity", op.Entity),
				zap.String("op", op.Name),
				zap.Error(rbErr))
		}
	}

	var zero T
	return zero, remoteErr
}
