package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ExportResult contains statistics about an export.
type ExportResult struct {
	Records int
	Path    string
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// ExportJSONL writes every record of the given partitions, tombstones included,
// as one JSON object per line. The file is written atomically via a temp file.
func (db *DB) ExportJSONL(ctx context.Context, path string, entities ...string) (ExportResult, error) {
	result := ExportResult{Path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return result, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.Create(tmpPath)
	if err != nil {
		return result, fmt.Errorf("failed to create export file: %w", err)
	}

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, entity := range entities {
		recs, err := db.Table(entity).FetchAll(ctx, Filter{IncludeDeleted: true})
		if err != nil {
			_ = file.Close()
			_ = os.Remove(tmpPath)
			return result, err
		}
		for _, rec := range recs {
			rec.ID = 0
			if err := enc.Encode(rec); err != nil {
				_ = file.Close()
				_ = os.Remove(tmpPath)
				return result, fmt.Errorf("failed to encode %s: %w", rec, err)
			}
			result.Records++
		}
	}

	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("failed to flush export file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return result, fmt.Errorf("failed to rename export file: %w", err)
	}

	db.logger.Info("exported records", zap.String("path", path), zap.Int("records", result.Records))
	return result, nil
}

// ImportJSONL restores records written by ExportJSONL. Each record keeps its
// sync state and modification time. Lines that fail validation are skipped
// and reported; a malformed line aborts the import.
func (db *DB) ImportJSONL(ctx context.Context, path string) (ImportResult, error) {
	var result ImportResult

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	line := 0
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("invalid JSON at line %d: %w", line+1, err)
		}
		line++

		rec.ID = 0
		if err := db.Table(rec.Entity).Restore(ctx, rec); err != nil {
			if errors.Is(err, ErrInvalidRecord) {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			return result, err
		}
		result.Imported++
	}

	db.logger.Info("imported records",
		zap.String("path", path),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
