// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resultsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/litminer/pkg/types"
)

// StatusPending selects records without a result in a RowFilter.
const StatusPending types.ResultStatus = "pending"

// FieldCount is the number of records with a non-empty value for Key.
type FieldCount struct {
	Key   string `json:"key" yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

// Stats summarizes the index.
type Stats struct {
	Records        int                     `json:"records" yaml:"records"`
	Succeeded      int                     `json:"succeeded" yaml:"succeeded"`
	Failed         int                     `json:"failed" yaml:"failed"`
	Pending        int                     `json:"pending" yaml:"pending"`
	FailuresByKind map[types.ErrorKind]int `json:"failures_by_kind,omitempty" yaml:"failures_by_kind,omitempty"`

	// Fields lists extracted keys by fill count, highest first.
	Fields []FieldCount `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Summary computes record counts per status, failures per error kind, and
// per-field fill counts. Only records present in the input are counted.
func (d *DB) Summary(ctx context.Context) (Stats, error) {
	st := Stats{FailuresByKind: make(map[types.ErrorKind]int)}

	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&st.Records); err != nil {
		return st, fmt.Errorf("counting records: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT r.status, COALESCE(r.error_kind, ''), count(*)
		 FROM results r JOIN records rec ON rec.id = r.record_id
		 GROUP BY r.status, r.error_kind`)
	if err != nil {
		return st, fmt.Errorf("counting results: %w", err)
	}
	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("scanning row: %w", err)
		}
		if types.ResultStatus(status) == types.StatusSuccess {
			st.Succeeded += n
			continue
		}
		st.Failed += n
		st.FailuresByKind[types.ErrorKind(kind)] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}
	st.Pending = st.Records - st.Succeeded - st.Failed

	st.Fields, err = d.fieldCounts(ctx)
	return st, err
}

func (d *DB) fieldCounts(ctx context.Context) ([]FieldCount, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT f.key, count(*) FROM fields f
		 JOIN records rec ON rec.id = f.record_id
		 WHERE f.value IS NOT NULL AND f.value != ''
		 GROUP BY f.key
		 ORDER BY count(*) DESC, f.key`)
	if err != nil {
		return nil, fmt.Errorf("counting fields: %w", err)
	}
	defer rows.Close()

	var out []FieldCount
	for rows.Next() {
		var fc FieldCount
		if err := rows.Scan(&fc.Key, &fc.Count); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// RowFilter narrows Rows.
type RowFilter struct {
	// Status selects success, failure, or StatusPending rows.
	Status types.ResultStatus

	// Kind selects failures of one error kind.
	Kind types.ErrorKind

	// Query is a case-insensitive substring of the source text.
	Query string

	// HasField selects rows with a non-empty value for this key.
	HasField string

	// Limit caps the number of rows. Zero means no limit.
	Limit int
}

// Row is one record merged with its result: the input columns, the
// extracted fields, and the error if the record failed.
type Row struct {
	RecordID     string             `json:"record_id" yaml:"record_id"`
	Row          int                `json:"row" yaml:"row"`
	SourceText   string             `json:"source_text" yaml:"source_text"`
	Metadata     map[string]string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Status       types.ResultStatus `json:"status" yaml:"status"`
	ErrorKind    types.ErrorKind    `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message      string             `json:"message,omitempty" yaml:"message,omitempty"`
	AttemptCount int                `json:"attempt_count,omitempty" yaml:"attempt_count,omitempty"`
	Fields       map[string]string  `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Rows returns the merged rows matching f in input order.
func (d *DB) Rows(ctx context.Context, f RowFilter) ([]Row, error) {
	var (
		qb   strings.Builder
		args []any
	)

	qb.WriteString(
		`SELECT rec.id, rec.row, rec.source_text, rec.metadata,
			r.status, r.error_kind, r.message, r.attempt_count
		FROM records rec
		LEFT JOIN results r ON r.record_id = rec.id
		WHERE 1=1`)

	switch f.Status {
	case "":
	case StatusPending:
		qb.WriteString(` AND r.record_id IS NULL`)
	default:
		qb.WriteString(` AND r.status = ?`)
		args = append(args, string(f.Status))
	}

	if f.Kind != "" {
		qb.WriteString(` AND r.error_kind = ?`)
		args = append(args, string(f.Kind))
	}

	if f.Query != "" {
		qb.WriteString(` AND instr(lower(rec.source_text), lower(?)) > 0`)
		args = append(args, f.Query)
	}

	if f.HasField != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM fields fl WHERE fl.record_id = rec.id AND fl.key = ? AND fl.value != '')`)
		args = append(args, f.HasField)
	}

	qb.WriteString(` ORDER BY rec.row`)
	if f.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var (
		out   []Row
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			r        Row
			metaJSON sql.NullString
			status   sql.NullString
			kind     sql.NullString
			message  sql.NullString
			attempts sql.NullInt64
		)
		if err := rows.Scan(&r.RecordID, &r.Row, &r.SourceText, &metaJSON,
			&status, &kind, &message, &attempts); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if metaJSON.Valid {
			json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}
		r.Status = StatusPending
		if status.Valid {
			r.Status = types.ResultStatus(status.String)
		}
		r.ErrorKind = types.ErrorKind(kind.String)
		r.Message = message.String
		r.AttemptCount = int(attempts.Int64)

		index[r.RecordID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := d.attachFields(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) attachFields(ctx context.Context, out []Row, index map[string]int) error {
	if len(out) == 0 {
		return nil
	}
	rows, err := d.db.QueryContext(ctx, `SELECT record_id, key, value FROM fields`)
	if err != nil {
		return fmt.Errorf("querying fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, key string
		var value sql.NullString
		if err := rows.Scan(&id, &key, &value); err != nil {
			return fmt.Errorf("scanning field: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if out[i].Fields == nil {
			out[i].Fields = make(map[string]string)
		}
		out[i].Fields[key] = value.String
	}
	return rows.Err()
}

// Columns returns the input header in file order.
func (d *DB) Columns(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM columns ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// fieldKeys returns every extracted key present in rows, sorted.
func fieldKeys(rows []Row) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r.Fields {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
