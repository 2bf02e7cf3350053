package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SyncState tags a cached record with its relationship to the remote copy.
type SyncState string

const (
	// StateSynced means the remote system has accepted the record's current content.
	StateSynced SyncState = "synced"
	// StatePending means the last local write has not been confirmed remotely.
	StatePending SyncState = "pending"
	// StateFailed means submission was abandoned after too many attempts.
	StateFailed SyncState = "failed"
)

// Valid reports whether s is one of the known states.
func (s SyncState) Valid() bool {
	switch s {
	case StateSynced, StatePending, StateFailed:
		return true
	default:
		return false
	}
}

// Record is the local representation of one domain entity.
type Record struct {
	// ID is the local row id. Zero until stored.
	ID int64 `json:"row_id,omitempty"`

	// Entity names the partition: "workers", "work_entries", "leave_requests".
	Entity string `json:"entity"`

	// LocalKey identifies the record before it has a server ID: an email or a UUID.
	LocalKey string `json:"local_key"`

	// ServerID is nil until the first successful remote create.
	ServerID *int64 `json:"server_id,omitempty"`

	// Payload is the JSON encoding of the domain value.
	Payload json.RawMessage `json:"payload"`

	SyncState SyncState `json:"sync_state"`

	// Deleted marks a tombstone for a removal made while offline.
	Deleted bool `json:"deleted,omitempty"`

	// SyncError holds the message of the last failed submission.
	SyncError  string `json:"sync_error,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`

	LastModifiedAt time.Time `json:"last_modified_at"`
}

// HasServerID reports whether the record has been created remotely.
func (r Record) HasServerID() bool {
	return r.ServerID != nil
}

// Validate checks the invariants every stored record must satisfy.
func (r Record) Validate() error {
	if r.Entity == "" {
		return fmt.Errorf("%w: entity is required", ErrInvalidRecord)
	}
	if !r.SyncState.Valid() {
		return fmt.Errorf("%w: unknown sync state %q", ErrInvalidRecord, r.SyncState)
	}
	if r.SyncState == StateSynced && r.ServerID == nil {
		return fmt.Errorf("%w: synced record %q has no server id", ErrInvalidRecord, r.LocalKey)
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidRecord)
	}
	if !json.Valid(r.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRecord)
	}
	return nil
}

// ServerIDPtr is a small helper for building records with a server ID.
func ServerIDPtr(id int64) *int64 {
	return &id
}

// Predicate selects records for deletion.
type Predicate struct {
	LocalKey string
	ServerID *int64
	State    SyncState
}

// ByLocalKey matches the record with the given local key.
func ByLocalKey(key string) Predicate {
	return Predicate{LocalKey: key}
}

// ByServerID matches the record with the given server ID.
func ByServerID(id int64) Predicate {
	return Predicate{ServerID: &id}
}

// ByState matches every record in the given state.
func ByState(state SyncState) Predicate {
	return Predicate{State: state}
}

func (p Predicate) empty() bool {
	return p.LocalKey == "" && p.ServerID == nil && p.State == ""
}

// Filter narrows FetchAll results.
type Filter struct {
	// State restricts results to one sync state (empty = all).
	State SyncState
	// IncludeDeleted returns tombstones as well.
	IncludeDeleted bool
	// Match is applied to every decoded row after the query.
	Match func(Record) bool
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when a record violates a store invariant.
	ErrInvalidRecord = errors.New("invalid record")
)

// StorageError reports a failure of the underlying store.
type StorageError struct {
	Op     string
	Entity string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
