package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const recordColumns = `id, entity, local_key, server_id, payload, sync_state, deleted, sync_error, retry_count, last_modified_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table is the partition of the cache holding one entity type.
type Table struct {
	db     *DB
	entity string
}

// Entity returns the partition name.
func (t *Table) Entity() string {
	return t.entity
}

// FetchAll returns every record matching the filter, ordered by insertion.
// A failed read never returns a partial result.
func (t *Table) FetchAll(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE entity = ?`
	args := []any{t.entity}
	if f.State != "" {
		query += ` AND sync_state = ?`
		args = append(args, string(f.State))
	}
	if !f.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY id ASC`

	rows, err := t.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "fetch", Entity: t.entity, Err: err}
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "fetch", Entity: t.entity, Err: err}
		}
		if f.Match != nil && !f.Match(rec) {
			continue
		}
		records = append(records, rec)
		if f.Limit > 0 && len(records) == f.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "fetch", Entity: t.entity, Err: err}
	}
	return records, nil
}

// Get returns the record with the given local key, including tombstones.
func (t *Table) Get(ctx context.Context, localKey string) (Record, error) {
	rec, found, err := t.lookup(ctx, t.db.conn, localKey, nil)
	if err != nil {
		return Record{}, &StorageError{Op: "get", Entity: t.entity, Err: err}
	}
	if !found {
		return Record{}, fmt.Errorf("%s %q: %w", t.entity, localKey, ErrNotFound)
	}
	return rec, nil
}

// GetByServerID returns the record the remote system knows by id.
func (t *Table) GetByServerID(ctx context.Context, id int64) (Record, error) {
	rec, found, err := t.lookup(ctx, t.db.conn, "", &id)
	if err != nil {
		return Record{}, &StorageError{Op: "get", Entity: t.entity, Err: err}
	}
	if !found {
		return Record{}, fmt.Errorf("%s server id %d: %w", t.entity, id, ErrNotFound)
	}
	return rec, nil
}

// Upsert inserts rec or replaces the stored record with the same natural key.
//
// The natural key is the local key; when that is empty or unknown the server
// ID is tried. An existing server ID is never cleared by an upsert that
// carries none. LastModifiedAt is stamped with the store clock. The stored
// record is returned.
func (t *Table) Upsert(ctx context.Context, rec Record) (Record, error) {
	rec.Entity = t.entity
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}

	err := t.db.withTx(ctx, "upsert", t.entity, func(tx *sql.Tx) error {
		existing, found, err := t.lookup(ctx, tx, rec.LocalKey, rec.ServerID)
		if err != nil {
			return err
		}

		rec.LastModifiedAt = t.db.now().UTC()
		if found {
			rec.ID = existing.ID
			rec.LocalKey = existing.LocalKey
			if rec.ServerID == nil {
				rec.ServerID = existing.ServerID
			}
			if rec.ServerID != nil {
				if err := t.mergeServerID(ctx, tx, *rec.ServerID, rec.ID); err != nil {
					return err
				}
			}
			return updateRow(ctx, tx, rec)
		}

		if rec.LocalKey == "" {
			rec.LocalKey = defaultLocalKey(rec.ServerID)
		}
		id, err := insertRow(ctx, tx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Restore writes rec exactly as given, including its state and timestamp.
// It is used to put a snapshot back after a failed remote operation.
func (t *Table) Restore(ctx context.Context, rec Record) error {
	rec.Entity = t.entity
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.LocalKey == "" {
		return fmt.Errorf("%w: restore requires a local key", ErrInvalidRecord)
	}
	if rec.LastModifiedAt.IsZero() {
		rec.LastModifiedAt = t.db.now().UTC()
	}

	return t.db.withTx(ctx, "restore", t.entity, func(tx *sql.Tx) error {
		existing, found, err := t.lookup(ctx, tx, rec.LocalKey, nil)
		if err != nil {
			return err
		}
		if found {
			rec.ID = existing.ID
			return updateRow(ctx, tx, rec)
		}
		_, err = insertRow(ctx, tx, rec)
		return err
	})
}

// Delete removes every record matching p and returns how many were removed.
// An empty predicate is rejected rather than clearing the partition.
func (t *Table) Delete(ctx context.Context, p Predicate) (int64, error) {
	if p.empty() {
		return 0, fmt.Errorf("%w: delete requires a predicate", ErrInvalidRecord)
	}

	query := `DELETE FROM records WHERE entity = ?`
	args := []any{t.entity}
	if p.LocalKey != "" {
		query += ` AND local_key = ?`
		args = append(args, p.LocalKey)
	}
	if p.ServerID != nil {
		query += ` AND server_id = ?`
		args = append(args, *p.ServerID)
	}
	if p.State != "" {
		query += ` AND sync_state = ?`
		args = append(args, string(p.State))
	}

	var n int64
	err := t.db.withTx(ctx, "delete", t.entity, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// CountPending returns the number of records awaiting submission.
func (t *Table) CountPending(ctx context.Context) (int, error) {
	var n int
	err := t.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = ? AND sync_state = 'pending'`,
		t.entity,
	).Scan(&n)
	if err != nil {
		return 0, &StorageError{Op: "count_pending", Entity: t.entity, Err: err}
	}
	return n, nil
}

// ListPending returns pending records, tombstones included, oldest first.
func (t *Table) ListPending(ctx context.Context) ([]Record, error) {
	return t.FetchAll(ctx, Filter{State: StatePending, IncludeDeleted: true})
}

// MarkSynced records a successful submission of seen.
//
// If the stored record was modified after seen was read, only the server ID
// is recorded and the record stays pending so the newer content is submitted
// on the next pass. The return value reports whether the record is now synced.
func (t *Table) MarkSynced(ctx context.Context, seen Record, serverID int64, payload json.RawMessage) (bool, error) {
	if len(payload) > 0 && !json.Valid(payload) {
		return false, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRecord)
	}

	synced := false
	err := t.db.withTx(ctx, "mark_synced", t.entity, func(tx *sql.Tx) error {
		current, found, err := t.lookup(ctx, tx, seen.LocalKey, nil)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s %q: %w", t.entity, seen.LocalKey, ErrNotFound)
		}
		if err := t.mergeServerID(ctx, tx, serverID, current.ID); err != nil {
			return err
		}

		if !current.LastModifiedAt.Equal(seen.LastModifiedAt) {
			t.db.logger.Debug("record changed during submission, keeping pending",
				zap.String("entity", t.entity),
				zap.String("local_key", seen.LocalKey))
			_, err := tx.ExecContext(ctx,
				`UPDATE records SET server_id = ? WHERE id = ?`, serverID, current.ID)
			return err
		}

		current.ServerID = &serverID
		if len(payload) > 0 {
			current.Payload = payload
		}
		current.SyncState = StateSynced
		current.SyncError = ""
		current.RetryCount = 0
		synced = true
		return updateRow(ctx, tx, current)
	})
	return synced, err
}

// RecordFailure notes a failed submission for the record with localKey. When
// final is true the record moves to the failed state and is no longer picked
// up by sync passes until ResetFailed.
func (t *Table) RecordFailure(ctx context.Context, localKey string, cause error, final bool) (Record, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	var rec Record
	err := t.db.withTx(ctx, "record_failure", t.entity, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE records
		SET sync_error = ?,
		    retry_count = retry_count + 1,
		    sync_state = CASE WHEN ? THEN 'failed' ELSE sync_state END
		WHERE entity = ? AND local_key = ?
		`, msg, final, t.entity, localKey)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%s %q: %w", t.entity, localKey, ErrNotFound)
		}

		var found bool
		rec, found, err = t.lookup(ctx, tx, localKey, nil)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s %q: %w", t.entity, localKey, ErrNotFound)
		}
		return nil
	})
	return rec, err
}

// ResetFailed moves every failed record back to pending with a fresh retry
// budget and returns how many were reset.
func (t *Table) ResetFailed(ctx context.Context) (int64, error) {
	var n int64
	err := t.db.withTx(ctx, "reset_failed", t.entity, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE records
		SET sync_state = 'pending', retry_count = 0
		WHERE entity = ? AND sync_state = 'failed'
		`, t.entity)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ReplaceResult summarizes a ReplaceSynced call.
type ReplaceResult struct {
	Written int
	Skipped int
	Removed int
}

// ReplaceSynced makes the synced part of the partition mirror recs, which is
// the complete remote list as read at asOf (see Now). Records with local
// changes that have not been confirmed are left untouched, as are synced
// records written after asOf, which the list may predate. Other synced
// records absent from recs are removed. A zero asOf disables the age check.
// The whole replacement is one transaction.
func (t *Table) ReplaceSynced(ctx context.Context, recs []Record, asOf time.Time) (ReplaceResult, error) {
	var result ReplaceResult

	for i := range recs {
		recs[i].Entity = t.entity
		recs[i].SyncState = StateSynced
		if err := recs[i].Validate(); err != nil {
			return result, err
		}
	}

	err := t.db.withTx(ctx, "replace_synced", t.entity, func(tx *sql.Tx) error {
		now := t.db.now().UTC()
		keep := make(map[int64]struct{}, len(recs))

		for _, rec := range recs {
			keep[*rec.ServerID] = struct{}{}

			existing, found, err := t.lookup(ctx, tx, rec.LocalKey, rec.ServerID)
			if err != nil {
				return err
			}
			if found && (existing.SyncState != StateSynced || newerThan(existing.LastModifiedAt, asOf)) {
				result.Skipped++
				continue
			}

			rec.LastModifiedAt = now
			rec.Deleted = false
			rec.SyncError = ""
			rec.RetryCount = 0
			if found {
				rec.ID = existing.ID
				rec.LocalKey = existing.LocalKey
				if err := updateRow(ctx, tx, rec); err != nil {
					return err
				}
			} else {
				if rec.LocalKey == "" {
					rec.LocalKey = defaultLocalKey(rec.ServerID)
				}
				if _, err := insertRow(ctx, tx, rec); err != nil {
					return err
				}
			}
			result.Written++
		}

		stale, err := staleSynced(ctx, tx, t.entity, keep, asOf)
		if err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
				return err
			}
			result.Removed++
		}
		return nil
	})
	if err != nil {
		return ReplaceResult{}, err
	}
	return result, nil
}

// staleSynced returns the row ids of synced records whose server ID is not in
// keep and that were last written at or before asOf.
func staleSynced(ctx context.Context, q queryer, entity string, keep map[int64]struct{}, asOf time.Time) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, server_id, last_modified_at FROM records WHERE entity = ? AND sync_state = 'synced'`, entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []int64
	for rows.Next() {
		var (
			id, serverID int64
			modified     string
		)
		if err := rows.Scan(&id, &serverID, &modified); err != nil {
			return nil, err
		}
		if _, ok := keep[serverID]; ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, modified)
		if err != nil {
			return nil, fmt.Errorf("parse last_modified_at %q: %w", modified, err)
		}
		if !newerThan(at, asOf) {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}

func newerThan(t, asOf time.Time) bool {
	return !asOf.IsZero() && t.After(asOf)
}

// mergeServerID drops synced rows other than keepID that already hold
// serverID. Such a row is a cache refresh that saw the remote copy of a
// record before its local row recorded the server ID.
func (t *Table) mergeServerID(ctx context.Context, tx *sql.Tx, serverID, keepID int64) error {
	res, err := tx.ExecContext(ctx, `
	DELETE FROM records
	WHERE entity = ? AND server_id = ? AND id <> ? AND sync_state = 'synced'
	`, t.entity, serverID, keepID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		t.db.logger.Debug("merged duplicate cache row",
			zap.String("entity", t.entity),
			zap.Int64("server_id", serverID))
	}
	return nil
}

// Now returns the store clock's current time, for use as the asOf of a
// later ReplaceSynced.
func (t *Table) Now() time.Time {
	return t.db.now().UTC()
}

// lookup finds a record by local key, falling back to server ID.
func (t *Table) lookup(ctx context.Context, q queryer, localKey string, serverID *int64) (Record, bool, error) {
	if localKey != "" {
		row := q.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE entity = ? AND local_key = ?`,
			t.entity, localKey)
		rec, err := scanRecord(row)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, err
		}
	}

	if serverID != nil {
		row := q.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE entity = ? AND server_id = ?`,
			t.entity, *serverID)
		rec, err := scanRecord(row)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, err
		}
	}

	return Record{}, false, nil
}

func insertRow(ctx context.Context, q queryer, rec Record) (int64, error) {
	res, err := q.ExecContext(ctx, `
	INSERT INTO records (entity, local_key, server_id, payload, sync_state, deleted, sync_error, retry_count, last_modified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rowArgs(rec)...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updateRow(ctx context.Context, q queryer, rec Record) error {
	args := append(rowArgs(rec), rec.ID)
	_, err := q.ExecContext(ctx, `
	UPDATE records
	SET entity = ?, local_key = ?, server_id = ?, payload = ?, sync_state = ?,
	    deleted = ?, sync_error = ?, retry_count = ?, last_modified_at = ?
	WHERE id = ?
	`, args...)
	return err
}

func rowArgs(rec Record) []any {
	var serverID sql.NullInt64
	if rec.ServerID != nil {
		serverID = sql.NullInt64{Int64: *rec.ServerID, Valid: true}
	}
	syncErr := sql.NullString{String: rec.SyncError, Valid: rec.SyncError != ""}
	return []any{
		rec.Entity,
		rec.LocalKey,
		serverID,
		string(rec.Payload),
		string(rec.SyncState),
		rec.Deleted,
		syncErr,
		rec.RetryCount,
		rec.LastModifiedAt.UTC().Format(time.RFC3339Nano),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec          Record
		serverID     sql.NullInt64
		payload      string
		state        string
		syncErr      sql.NullString
		lastModified string
	)
	err := s.Scan(
		&rec.ID,
		&rec.Entity,
		&rec.LocalKey,
		&serverID,
		&payload,
		&state,
		&rec.Deleted,
		&syncErr,
		&rec.RetryCount,
		&lastModified,
	)
	if err != nil {
		return Record{}, err
	}

	if serverID.Valid {
		id := serverID.Int64
		rec.ServerID = &id
	}
	rec.Payload = json.RawMessage(payload)
	rec.SyncState = SyncState(state)
	rec.SyncError = syncErr.String

	rec.LastModifiedAt, err = time.Parse(time.RFC3339Nano, lastModified)
	if err != nil {
		return Record{}, fmt.Errorf("parse last_modified_at %q: %w", lastModified, err)
	}
	return rec, nil
}

func defaultLocalKey(serverID *int64) string {
	if serverID != nil {
		return fmt.Sprintf("server-%d", *serverID)
	}
	return uuid.NewString()
}

// String renders a record for log lines.
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s", r.Entity, r.LocalKey)
	if r.ServerID != nil {
		fmt.Fprintf(&b, "#%d", *r.ServerID)
	}
	fmt.Fprintf(&b, " [%s]", r.SyncState)
	if r.Deleted {
		b.WriteString(" deleted")
	}
	return b.String()
}
