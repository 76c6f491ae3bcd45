// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resultsdb

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatCSV, FormatXLSX, FormatJSON, FormatYAML}

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, xlsx, json, or yaml)", s)
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

const sheetName = "Results"

// Export writes the rows matching f to w in the given format.
func (d *DB) Export(ctx context.Context, w io.Writer, format Format, f RowFilter) error {
	switch format {
	case FormatCSV:
		return d.ExportCSV(ctx, w, f)
	case FormatXLSX:
		return d.ExportXLSX(ctx, w, f)
	case FormatJSON:
		return d.ExportJSON(ctx, w, f)
	case FormatYAML:
		return d.ExportYAML(ctx, w, f)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// Table returns the merged results as a header and string rows: the
// record id, the input columns, the source text, the extracted fields,
// and the outcome columns.
func (d *DB) Table(ctx context.Context, f RowFilter) ([]string, [][]string, error) {
	rows, err := d.Rows(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	cols, err := d.Columns(ctx)
	if err != nil {
		return nil, nil, err
	}

	var meta []string
	for _, c := range cols {
		for _, r := range rows {
			if _, ok := r.Metadata[c]; ok {
				meta = append(meta, c)
				break
			}
		}
	}
	keys := fieldKeys(rows)

	header := []string{"record_id"}
	header = append(header, meta...)
	header = append(header, "source_text")
	header = append(header, keys...)
	header = append(header, "status", "error_kind", "error", "attempts")

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := make([]string, 0, len(header))
		line = append(line, r.RecordID)
		for _, c := range meta {
			line = append(line, r.Metadata[c])
		}
		line = append(line, r.SourceText)
		for _, k := range keys {
			line = append(line, r.Fields[k])
		}
		attempts := ""
		if r.AttemptCount > 0 {
			attempts = strconv.Itoa(r.AttemptCount)
		}
		line = append(line, string(r.Status), string(r.ErrorKind), r.Message, attempts)
		out = append(out, line)
	}
	return header, out, nil
}

// ExportCSV writes the merged table as UTF-8 CSV with a byte order mark,
// which spreadsheet applications need to detect the encoding.
func (d *DB) ExportCSV(ctx context.Context, w io.Writer, f RowFilter) error {
	header, rows, err := d.Table(ctx, f)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

// ExportXLSX writes the merged table as a workbook with one sheet.
func (d *DB) ExportXLSX(ctx context.Context, w io.Writer, f RowFilter) error {
	header, rows, err := d.Table(ctx, f)
	if err != nil {
		return err
	}

	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName(x.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	set := func(col, row int, v string) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return x.SetCellValue(sheetName, cell, v)
	}

	for i, h := range header {
		if err := set(i+1, 1, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}
	for r, line := range rows {
		for c, v := range line {
			if err := set(c+1, r+2, v); err != nil {
				return fmt.Errorf("xlsx row %d: %w", r+2, err)
			}
		}
	}

	if style, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = x.SetCellStyle(sheetName, "A1", last, style)
	}
	_ = x.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// ExportJSON writes the merged rows as an indented JSON array.
func (d *DB) ExportJSON(ctx context.Context, w io.Writer, f RowFilter) error {
	rows, err := d.Rows(ctx, f)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

// ExportYAML writes the merged rows as a YAML sequence.
func (d *DB) ExportYAML(ctx context.Context, w io.Writer, f RowFilter) error {
	rows, err := d.Rows(ctx, f)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}
