package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind describes how the engine keys and identifies values of one entity type.
type Kind[T any] struct {
	// Name is the store partition, e.g. "workers".
	Name string

	// Key returns the natural local key of v, or "" to have one generated.
	Key func(v T) string
	// SetKey records the local key on v.
	SetKey func(v *T, key string)

	// ID returns the server ID of v, or nil before the first remote create.
	ID func(v T) *int64
	// SetID records the server ID on v.
	SetID func(v *T, id int64)

	// Validate is run before every local write. Optional.
	Validate func(v T) error
}

// Remote is the remote capability set for one entity type.
type Remote[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, v T) (T, error)
	Update(ctx context.Context, id int64, v T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Repository is the offline-first engine for one entity type.
//
// Callers must not issue overlapping writes for the same value.
type Repository[T any] struct {
	kind   Kind[T]
	remote Remote[T]
	table  *store.Table
	conn   Connectivity
	status *status.Broadcaster
	sync   *Synchronizer
	logger *zap.Logger
}

type repoOptions struct {
	logger      *zap.Logger
	broadcaster *status.Broadcaster
	maxAttempts int
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repoOptions)

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) RepositoryOption {
	return func(o *repoOptions) { o.logger = logger }
}

// WithBroadcaster publishes status to an existing broadcaster instead of a
// private one.
func WithBroadcaster(b *status.Broadcaster) RepositoryOption {
	return func(o *repoOptions) { o.broadcaster = b }
}

// WithMaxSubmitAttempts sets when a repeatedly failing record is abandoned.
func WithMaxSubmitAttempts(n int) RepositoryOption {
	return func(o *repoOptions) { o.maxAttempts = n }
}

// NewRepository composes the engine for kind.
func NewRepository[T any](kind Kind[T], remote Remote[T], db *store.DB, conn Connectivity, opts ...RepositoryOption) *Repository[T] {
	o := repoOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.broadcaster == nil {
		o.broadcaster = status.NewBroadcaster(kind.Name, status.WithLogger(o.logger))
	}

	table := db.Table(kind.Name)
	r := &Repository[T]{
		kind:   kind,
		remote: remote,
		table:  table,
		conn:   conn,
		status: o.broadcaster,
		logger: o.logger.Named("repo").With(zap.String("entity", kind.Name)),
	}
	r.sync = NewSynchronizer(SynchronizerConfig{
		Table:             table,
		Remote:            &recordRemote[T]{repo: r},
		Conn:              conn,
		Status:            o.broadcaster,
		MaxSubmitAttempts: o.maxAttempts,
		Logger:            o.logger,
	})
	return r
}

// Entity returns the entity type name.
func (r *Repository[T]) Entity() string {
	return r.kind.Name
}

// Synchronizer returns the pending change synchronizer for this entity.
func (r *Repository[T]) Synchronizer() *Synchronizer {
	return r.sync
}

// Broadcaster returns the status broadcaster for this entity.
func (r *Repository[T]) Broadcaster() *status.Broadcaster {
	return r.status
}

// Status subscribes to this entity's sync status.
func (r *Repository[T]) Status(ctx context.Context) (<-chan status.Status, func()) {
	return r.status.Subscribe(ctx)
}

// HasPendingChanges reports whether local writes await submission.
func (r *Repository[T]) HasPendingChanges(ctx context.Context) (bool, error) {
	return r.sync.HasPendingChanges(ctx)
}

// PendingChanges lists records awaiting submission, oldest first.
func (r *Repository[T]) PendingChanges(ctx context.Context) ([]store.Record, error) {
	return store.NewTracker(r.table).PendingChanges(ctx)
}

// SyncPendingChanges runs one sync pass.
func (r *Repository[T]) SyncPendingChanges(ctx context.Context) error {
	return r.sync.SyncPendingChanges(ctx)
}

// RetryFailed requeues records that were abandoned after too many attempts.
func (r *Repository[T]) RetryFailed(ctx context.Context) (int64, error) {
	return r.sync.RetryFailed(ctx)
}

// List returns every value accepted by match (nil = all).
//
// When connected, pending changes are pushed first, then the remote list
// replaces the synced part of the cache and is returned. When the remote
// list cannot be fetched, or when offline, the cache is returned.
func (r *Repository[T]) List(ctx context.Context, match func(T) bool) ([]T, error) {
	connected := r.conn.IsConnected()

	if connected {
		pending, err := r.sync.HasPendingChanges(ctx)
		if err != nil {
			return nil, err
		}
		if pending {
			if err := r.sync.SyncPendingChanges(ctx); err != nil {
				r.logger.Warn("sync before list failed", zap.Error(err))
			}
		}
	}

	var onlineErr error
	online := func(ctx context.Context) ([]T, error) {
		items, err := r.fetchRemote(ctx, match)
		onlineErr = err
		return items, err
	}
	offline := func(ctx context.Context) ([]T, error) {
		return r.fetchLocal(ctx, match)
	}

	if connected {
		r.status.Publish(status.New(r.kind.Name, status.Syncing))
	}
	items, err := Load(ctx, r.logger, online, offline, connected)
	switch {
	case err != nil:
		r.status.Publish(status.NewFailed(r.kind.Name, err))
		return nil, err
	case !connected:
		r.status.Publish(status.New(r.kind.Name, status.Offline))
	case onlineErr != nil:
		r.status.Publish(status.NewFailed(r.kind.Name, onlineErr))
	default:
		r.status.Publish(status.New(r.kind.Name, status.Synced))
	}
	return items, nil
}

// Get returns the cached value with the given local key.
func (r *Repository[T]) Get(ctx context.Context, key string) (T, error) {
	rec, err := r.table.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.decode(rec)
}

// Create stores v locally and, when connected, creates it remotely. If the
// remote create fails the local record is removed again and the remote
// error is returned.
func (r *Repository[T]) Create(ctx context.Context, v T) (T, error) {
	if err := r.validate(v); err != nil {
		return v, err
	}

	key := r.kind.Key(v)
	if key == "" {
		key = uuid.NewString()
	}
	r.kind.SetKey(&v, key)

	op := Operation[T]{
		Entity:    r.kind.Name,
		Name:      "create",
		Connected: r.conn.IsConnected(),
		Local: func(ctx context.Context) (T, error) {
			if _, err := r.table.Get(ctx, key); err == nil {
				return v, fmt.Errorf("%s %q: %w", r.kind.Name, key, ErrDuplicate)
			} else if !errors.Is(err, store.ErrNotFound) {
				return v, err
			}
			_, err := r.put(ctx, v, key, store.StatePending)
			return v, err
		},
		Remote: func(ctx context.Context, local T) (T, error) {
			created, err := r.remote.Create(ctx, local)
			if err != nil {
				return created, err
			}
			return r.confirm(ctx, created, key)
		},
		Rollback: func(ctx context.Context) error {
			_, err := r.table.Delete(ctx, store.ByLocalKey(key))
			return err
		},
	}

	var out T
	err := r.sync.exclusive(func() error {
		var err error
		out, err = Apply(ctx, r.logger, op)
		return err
	})
	return out, err
}

// Update writes v locally and, when connected and already known to the
// server, updates it remotely. If the remote update fails the previous
// cached record is restored and the remote error is returned.
func (r *Repository[T]) Update(ctx context.Context, v T) (T, error) {
	if err := r.validate(v); err != nil {
		return v, err
	}

	var out T
	deferred := false
	err := r.sync.exclusive(func() error {
		prev, err := r.find(ctx, v)
		if err != nil {
			return err
		}
		if prev.Deleted {
			return fmt.Errorf("%s %q: %w", r.kind.Name, prev.LocalKey, store.ErrNotFound)
		}
		r.kind.SetKey(&v, prev.LocalKey)
		if prev.ServerID != nil {
			r.kind.SetID(&v, *prev.ServerID)
		}

		connected := r.conn.IsConnected()
		// Without a server ID the record is still waiting for its create;
		// the next pass submits the new content.
		deferred = connected && prev.ServerID == nil

		op := Operation[T]{
			Entity:    r.kind.Name,
			Name:      "update",
			Connected: connected && prev.ServerID != nil,
			Local: func(ctx context.Context) (T, error) {
				_, err := r.put(ctx, v, prev.LocalKey, store.StatePending)
				return v, err
			},
			Remote: func(ctx context.Context, local T) (T, error) {
				updated, err := r.remote.Update(ctx, *prev.ServerID, local)
				if err != nil {
					return updated, err
				}
				return r.confirm(ctx, updated, prev.LocalKey)
			},
			Rollback: func(ctx context.Context) error {
				return r.table.Restore(ctx, prev)
			},
		}
		out, err = Apply(ctx, r.logger, op)
		return err
	})
	if err != nil {
		return out, err
	}

	if deferred {
		if err := r.sync.SyncPendingChanges(ctx); err != nil {
			r.logger.Warn("sync after update failed", zap.Error(err))
		}
	}
	return out, nil
}

// Remove deletes v. A value that never reached the server is dropped from
// the cache. Otherwise, when connected, it is deleted remotely and then
// locally, with the cached record restored if the remote delete fails; when
// offline a tombstone is left for the next sync pass.
func (r *Repository[T]) Remove(ctx context.Context, v T) error {
	return r.sync.exclusive(func() error {
		prev, err := r.find(ctx, v)
		if err != nil {
			return err
		}

		if prev.ServerID == nil {
			_, err := r.table.Delete(ctx, store.ByLocalKey(prev.LocalKey))
			return err
		}

		op := Operation[T]{
			Entity:    r.kind.Name,
			Name:      "remove",
			Connected: r.conn.IsConnected(),
			Local: func(ctx context.Context) (T, error) {
				tomb := prev
				tomb.Deleted = true
				tomb.SyncState = store.StatePending
				_, err := r.table.Upsert(ctx, tomb)
				return v, err
			},
			Remote: func(ctx context.Context, local T) (T, error) {
				if err := r.remote.Delete(ctx, *prev.ServerID); err != nil && !IsNotFound(err) {
					return local, err
				}
				_, err := r.table.Delete(ctx, store.ByLocalKey(prev.LocalKey))
				return local, err
			},
			Rollback: func(ctx context.Context) error {
				return r.table.Restore(ctx, prev)
			},
		}
		_, err = Apply(ctx, r.logger, op)
		return err
	})
}

func (r *Repository[T]) validate(v T) error {
	if r.kind.Validate == nil {
		return nil
	}
	if err := r.kind.Validate(v); err != nil {
		return fmt.Errorf("invalid %s: %w", r.kind.Name, err)
	}
	return nil
}

// find returns the cached record for v by local key, then server ID.
func (r *Repository[T]) find(ctx context.Context, v T) (store.Record, error) {
	if key := r.kind.Key(v); key != "" {
		rec, err := r.table.Get(ctx, key)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return rec, err
		}
	}
	if id := r.kind.ID(v); id != nil {
		return r.table.GetByServerID(ctx, *id)
	}
	return store.Record{}, fmt.Errorf("%s without key or id: %w", r.kind.Name, store.ErrNotFound)
}

// put writes v with the given key and state.
func (r *Repository[T]) put(ctx context.Context, v T, key string, state store.SyncState) (store.Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode %s: %w", r.kind.Name, err)
	}
	return r.table.Upsert(ctx, store.Record{
		LocalKey:  key,
		ServerID:  r.kind.ID(v),
		Payload:   payload,
		SyncState: state,
	})
}

// confirm persists a value returned by the server as synced.
func (r *Repository[T]) confirm(ctx context.Context, v T, key string) (T, error) {
	if r.kind.ID(v) == nil {
		return v, &RemoteError{
			Op:     "confirm",
			Entity: r.kind.Name,
			Code:   CodeInvalid,
			Err:    errors.New("response has no id"),
		}
	}
	r.kind.SetKey(&v, key)
	if _, err := r.put(ctx, v, key, store.StateSynced); err != nil {
		return v, err
	}
	return v, nil
}

func (r *Repository[T]) decode(rec store.Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", rec, err)
	}
	r.kind.SetKey(&v, rec.LocalKey)
	if rec.ServerID != nil {
		r.kind.SetID(&v, *rec.ServerID)
	}
	return v, nil
}

func (r *Repository[T]) fetchLocal(ctx context.Context, match func(T) bool) ([]T, error) {
	recs, err := r.table.FetchAll(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := r.decode(rec)
		if err != nil {
			return nil, err
		}
		if match == nil || match(v) {
			items = append(items, v)
		}
	}
	return items, nil
}

func (r *Repository[T]) fetchRemote(ctx context.Context, match func(T) bool) ([]T, error) {
	asOf := r.table.Now()
	remote, err := r.remote.List(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]store.Record, 0, len(remote))
	items := make([]T, 0, len(remote))
	for _, v := range remote {
		if r.kind.ID(v) == nil {
			r.logger.Warn("skipping remote value without id")
			continue
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.kind.Name, err)
		}
		recs = append(recs, store.Record{
			LocalKey: r.kind.Key(v),
			ServerID: r.kind.ID(v),
			Payload:  payload,
		})
		if match == nil || match(v) {
			items = append(items, v)
		}
	}

	// Held like a pass so the refresh cannot land between a remote create
	// and the local record learning its server ID.
	var res store.ReplaceResult
	err = r.sync.exclusive(func() error {
		var err error
		res, err = r.table.ReplaceSynced(ctx, recs, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("cache refreshed",
		zap.Int("written", res.Written),
		zap.Int("kept_local", res.Skipped),
		zap.Int("removed", res.Removed))
	return items, nil
}

// recordRemote adapts a Remote[T] to the record-level interface the
// synchronizer submits through.
type recordRemote[T any] struct {
	repo *Repository[T]
}

func (a *recordRemote[T]) Create(ctx context.Context, rec store.Record) (int64, json.RawMessage, error) {
	v, err := a.repo.decode(rec)
	if err != nil {
		return 0, nil, err
	}
	created, err := a.repo.remote.Create(ctx, v)
	if err != nil {
		return 0, nil, err
	}
	id := a.repo.kind.ID(created)
	if id == nil {
		return 0, nil, &RemoteError{Op: "create", Entity: a.repo.kind.Name, Code: CodeInvalid, Err: errors.New("response has no id")}
	}
	payload, err := json.Marshal(created)
	if err != nil {
		return 0, nil, err
	}
	return *id, payload, nil
}

func (a *recordRemote[T]) Update(ctx context.Context, serverID int64, rec store.Record) (json.RawMessage, error) {
	v, err := a.repo.decode(rec)
	if err != nil {
		return nil, err
	}
	updated, err := a.repo.remote.Update(ctx, serverID, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(updated)
}

func (a *recordRemote[T]) Delete(ctx context.Context, serverID int64) error {
	return a.repo.remote.Delete(ctx, serverID)
}
