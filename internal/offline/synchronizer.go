package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
	"go.uber.org/zap"
)

// Connectivity is the reachability oracle the engine consults.
type Connectivity interface {
	IsConnected() bool
	ShouldAllowSync() bool
}

// RecordRemote submits cached records to the remote API.
type RecordRemote interface {
	Create(ctx context.Context, rec store.Record) (int64, json.RawMessage, error)
	Update(ctx context.Context, serverID int64, rec store.Record) (json.RawMessage, error)
	Delete(ctx context.Context, serverID int64) error
}

// PassResult summarizes one sync pass.
type PassResult struct {
	Entity    string
	Offline   bool
	Created   int
	Updated   int
	Deleted   int
	Requeued  int
	Abandoned int
}

// Synchronizer drains the pending records of one entity type.
//
// Passes are serialized: a pass started while another is running waits for
// it. Within a pass records are submitted one at a time in insertion order
// and the pass stops at the first failure. There is no retry within a pass.
type Synchronizer struct {
	table       *store.Table
	tracker     *store.Tracker
	remote      RecordRemote
	conn        Connectivity
	status      *status.Broadcaster
	maxAttempts int
	logger      *zap.Logger

	mu sync.Mutex
}

// SynchronizerConfig holds the collaborators of a Synchronizer.
type SynchronizerConfig struct {
	Table  *store.Table
	Remote RecordRemote
	Conn   Connectivity
	Status *status.Broadcaster

	// MaxSubmitAttempts moves a record to the failed state once it has
	// failed this many times. Zero keeps it pending forever.
	MaxSubmitAttempts int

	Logger *zap.Logger
}

// NewSynchronizer creates a synchronizer from cfg. A nil Status gets a
// private broadcaster.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bc := cfg.Status
	if bc == nil {
		bc = status.NewBroadcaster(cfg.Table.Entity())
	}
	return &Synchronizer{
		table:       cfg.Table,
		tracker:     store.NewTracker(cfg.Table),
		remote:      cfg.Remote,
		conn:        cfg.Conn,
		status:      bc,
		maxAttempts: cfg.MaxSubmitAttempts,
		logger:      logger.Named("sync").With(zap.String("entity", cfg.Table.Entity())),
	}
}

// Entity returns the entity type this synchronizer drains.
func (s *Synchronizer) Entity() string {
	return s.table.Entity()
}

// HasPendingChanges reports whether the entity has records awaiting submission.
func (s *Synchronizer) HasPendingChanges(ctx context.Context) (bool, error) {
	return s.tracker.HasPendingChanges(ctx)
}

// SyncPendingChanges runs one pass. Being offline is not an error.
func (s *Synchronizer) SyncPendingChanges(ctx context.Context) error {
	_, err := s.Pass(ctx)
	return err
}

// Pass runs one sync pass and reports what it did.
//
// When sync is not allowed only an offline status is published. Otherwise
// a syncing status is published, followed by exactly one of synced or
// failed.
func (s *Synchronizer) Pass(ctx context.Context) (PassResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := PassResult{Entity: s.Entity()}

	if !s.conn.ShouldAllowSync() {
		result.Offline = true
		s.status.Publish(status.New(s.Entity(), status.Offline))
		return result, nil
	}

	s.status.Publish(status.New(s.Entity(), status.Syncing))

	pending, err := s.tracker.PendingChanges(ctx)
	if err != nil {
		s.status.Publish(status.NewFailed(s.Entity(), err))
		return result, err
	}

	for _, rec := range pending {
		if err := s.submit(ctx, rec, &result); err != nil {
			s.recordFailure(ctx, rec, err, &result)
			s.status.Publish(status.NewFailed(s.Entity(), err))
			return result, err
		}
	}

	if len(pending) > 0 {
		s.logger.Info("sync pass complete",
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("deleted", result.Deleted),
			zap.Int("requeued", result.Requeued))
	}
	s.status.Publish(status.New(s.Entity(), status.Synced))
	return result, nil
}

func (s *Synchronizer) submit(ctx context.Context, rec store.Record, result *PassResult) error {
	switch {
	case rec.Deleted && rec.ServerID != nil:
		if err := s.remote.Delete(ctx, *rec.ServerID); err != nil && !IsNotFound(err) {
			return err
		}
		if _, err := s.table.Delete(ctx, store.ByLocalKey(rec.LocalKey)); err != nil {
			return err
		}
		result.Deleted++

	case rec.Deleted:
		// Never reached the server; nothing to tell it.
		if _, err := s.table.Delete(ctx, store.ByLocalKey(rec.LocalKey)); err != nil {
			return err
		}
		result.Deleted++

	case rec.ServerID == nil:
		id, payload, err := s.remote.Create(ctx, rec)
		if err != nil {
			return err
		}
		synced, err := s.table.MarkSynced(ctx, rec, id, payload)
		if err != nil {
			s.logger.Error("created remotely but failed to record server id",
				zap.String("local_key", rec.LocalKey),
				zap.Int64("server_id", id),
				zap.Error(err))
			return err
		}
		result.Created++
		if !synced {
			result.Requeued++
		}

	default:
		payload, err := s.remote.Update(ctx, *rec.ServerID, rec)
		if err != nil {
			return err
		}
		synced, err := s.table.MarkSynced(ctx, rec, *rec.ServerID, payload)
		if err != nil {
			return err
		}
		result.Updated++
		if !synced {
			result.Requeued++
		}
	}
	return nil
}

func (s *Synchronizer) recordFailure(ctx context.Context, rec store.Record, cause error, result *PassResult) {
	final := s.maxAttempts > 0 && IsRemoteError(cause) && rec.RetryCount+1 >= s.maxAttempts

	updated, err := s.table.RecordFailure(ctx, rec.LocalKey, cause, final)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to record sync failure",
				zap.String("local_key", rec.LocalKey), zap.Error(err))
		}
		return
	}

	if final {
		result.Abandoned++
		s.logger.Warn("giving up on record",
			zap.String("local_key", rec.LocalKey),
			zap.Int("attempts", updated.RetryCount),
			zap.Error(cause))
		return
	}
	s.logger.Warn("sync pass aborted",
		zap.String("local_key", rec.LocalKey),
		zap.Int("attempts", updated.RetryCount),
		zap.Error(cause))
}

// RetryFailed moves failed records back to pending. It does not start a pass.
func (s *Synchronizer) RetryFailed(ctx context.Context) (int64, error) {
	n, err := s.table.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("requeued failed records", zap.Int64("count", n))
	}
	return n, nil
}

// exclusive runs fn while holding the pass lock, so no pass can submit the
// same pending record concurrently.
func (s *Synchronizer) exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
