// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resultsdb indexes a run's records and checkpoint entries in a
// SQLite database for summaries, filtered listings, and exports of the
// merged results table.
package resultsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litminer/internal/extract"
	"github.com/pdiddy/litminer/pkg/types"
)

// DB is an open results index.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the index at path and creates the schema if it
// does not exist.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{db: db, path: path}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS columns (
			position INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			row INTEGER NOT NULL,
			source_text TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			record_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			error_kind TEXT,
			message TEXT,
			raw_response TEXT,
			attempt_count INTEGER NOT NULL,
			timestamp TEXT,
			run_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_status ON results(status)`,
		`CREATE TABLE IF NOT EXISTS fields (
			record_id TEXT NOT NULL REFERENCES results(record_id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (record_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fields_key ON fields(key)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Input is the record side of an ingest.
type Input struct {
	// Columns is the input header in file order.
	Columns []string
	Records []types.Record
}

// IngestSummary holds counts from an ingest.
type IngestSummary struct {
	Records int
	Results int
	Fields  int

	// Orphans counts entries whose record is not in the input.
	Orphans int
}

// Ingest replaces the index contents with in and entries in one
// transaction, so the index always mirrors one checkpoint state.
func (d *DB) Ingest(ctx context.Context, in Input, entries map[string]types.CheckpointEntry) (IngestSummary, error) {
	var summary IngestSummary

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM fields`, `DELETE FROM results`, `DELETE FROM records`, `DELETE FROM columns`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return summary, fmt.Errorf("clearing index: %w", err)
		}
	}

	for i, name := range in.Columns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO columns (position, name) VALUES (?, ?)`, i, name); err != nil {
			return summary, fmt.Errorf("inserting column %s: %w", name, err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, row, source_text, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET row=excluded.row, source_text=excluded.source_text, metadata=excluded.metadata`)
	if err != nil {
		return summary, fmt.Errorf("preparing record insert: %w", err)
	}
	defer recStmt.Close()

	known := make(map[string]bool, len(in.Records))
	for _, rec := range in.Records {
		meta, _ := json.Marshal(rec.Metadata)
		if _, err := recStmt.ExecContext(ctx, rec.ID, rec.Row, rec.SourceText, string(meta)); err != nil {
			return summary, fmt.Errorf("inserting record %s: %w", rec.ID, err)
		}
		known[rec.ID] = true
		summary.Records++
	}

	resStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (record_id, status, error_kind, message, raw_response, attempt_count, timestamp, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return summary, fmt.Errorf("preparing result insert: %w", err)
	}
	defer resStmt.Close()

	fieldStmt, err := tx.PrepareContext(ctx, `INSERT INTO fields (record_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return summary, fmt.Errorf("preparing field insert: %w", err)
	}
	defer fieldStmt.Close()

	for id, e := range entries {
		if !known[id] {
			summary.Orphans++
		}
		ts := ""
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if _, err := resStmt.ExecContext(ctx,
			id, string(e.Status), string(e.ErrorKind), e.Message, e.RawResponse, e.AttemptCount, ts, e.RunID,
		); err != nil {
			return summary, fmt.Errorf("inserting result %s: %w", id, err)
		}
		summary.Results++

		for key, v := range e.Fields {
			if _, err := fieldStmt.ExecContext(ctx, id, key, extract.FormatValue(v)); err != nil {
				return summary, fmt.Errorf("inserting field %s.%s: %w", id, key, err)
			}
			summary.Fields++
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing ingest: %w", err)
	}
	return summary, nil
}
