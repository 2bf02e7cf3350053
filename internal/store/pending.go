package store

import "context"

// Tracker answers whether a partition holds records awaiting submission.
// It reads the store on every call so the answer reflects writes made by any
// component, including other processes sharing the database file.
type Tracker struct {
	table *Table
}

// NewTracker returns a tracker for the given partition.
func NewTracker(table *Table) *Tracker {
	return &Tracker{table: table}
}

// Entity returns the tracked partition name.
func (t *Tracker) Entity() string {
	return t.table.Entity()
}

// HasPendingChanges reports whether at least one record is pending.
func (t *Tracker) HasPendingChanges(ctx context.Context) (bool, error) {
	n, err := t.table.CountPending(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingChanges returns the pending records, oldest first.
func (t *Tracker) PendingChanges(ctx context.Context) ([]Record, error) {
	return t.table.ListPending(ctx)
}

// FailedChanges returns records whose submission was abandoned.
func (t *Tracker) FailedChanges(ctx context.Context) ([]Record, error) {
	return t.table.FetchAll(ctx, Filter{State: StateFailed, IncludeDeleted: true})
}
