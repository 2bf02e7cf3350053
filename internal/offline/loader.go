// Package offline implements the offline-first synchronization engine:
// reading with a cache fallback, optimistic writes with rollback, and
// draining locally pending changes to the remote API.
//
// The engine is generic over the entity type. Each entity contributes a
// Kind (how to key and identify its values) and a Remote (how to reach the
// API); Repository composes them with the local store, a connectivity
// oracle and a status broadcaster.
package offline

import (
	"context"

	"go.uber.org/zap"
)

// LoadFunc produces a value, either from the remote API or the local cache.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Load returns online's result when connected, falling back to offline if
// online fails. The online error is logged, not returned; if the fallback
// fails too its error is returned. When not connected online is never
// called.
//
// Results are never merged: the value comes wholly from one source.
func Load[T any](ctx context.Context, logger *zap.Logger, online, offline LoadFunc[T], connected bool) (T, error) {
	if !connected {
		return offline(ctx)
	}

	v, err := online(ctx)
	if err == nil {
		return v, nil
	}

	if logger != nil {
		logger.Warn("online load failed, using cached data", zap.Error(err))
	}
	return offline(ctx)
}
