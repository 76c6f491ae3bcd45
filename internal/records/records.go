// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package records loads literature records from tabular exports (CSV or
// XLSX) and normalizes them into types.Record values. Loading tolerates
// ragged rows, a UTF-8 byte order mark, GBK-encoded files, and duplicate
// ids; each repair is reported as a warning rather than an error.
package records

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/pdiddy/litminer/pkg/types"
)

// utf8BOM is stripped from the start of CSV input.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadResult holds the ordered records of one input file and every
// non-fatal repair made while loading it.
type LoadResult struct {
	Records  []types.Record
	Columns  []string
	Warnings []string
}

// Load reads the table at path and returns its records in file order.
// It fails with *types.FormatError when the file cannot be parsed, has no
// header, or lacks a required column.
func Load(path string, opts types.InputConfig) (*LoadResult, error) {
	rows, warnings, err := readTable(path, opts.Sheet)
	if err != nil {
		return nil, err
	}

	res, err := buildRecords(path, rows, opts)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// readTable dispatches on the file extension.
func readTable(path, sheet string) ([][]string, []string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err := readXLSX(path, sheet)
		return rows, nil, err
	case ".csv", ".txt", "":
		return readCSV(path)
	default:
		return nil, nil, &types.FormatError{Path: path, Reason: "unsupported file type " + filepath.Ext(path)}
	}
}

// readCSV reads a CSV file, repairing its encoding first.
func readCSV(path string) ([][]string, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &types.FormatError{Path: path, Reason: "cannot read file", Err: err}
	}

	data, warnings, err := normalizeEncoding(data)
	if err != nil {
		return nil, nil, &types.FormatError{Path: path, Reason: "cannot decode text", Err: err}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &types.FormatError{Path: path, Reason: "unreadable CSV structure", Err: err}
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

// normalizeEncoding strips a UTF-8 BOM and converts GBK input to UTF-8.
func normalizeEncoding(data []byte) ([]byte, []string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil, nil
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return nil, nil, err
	}
	return decoded, []string{"input is not valid UTF-8; decoded as GBK"}, nil
}

// readXLSX reads one worksheet; the first sheet when sheet is empty.
func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &types.FormatError{Path: path, Reason: "cannot open workbook", Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &types.FormatError{Path: path, Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &types.FormatError{Path: path, Reason: fmt.Sprintf("cannot read sheet %q", sheet), Err: err}
	}
	return rows, nil
}

// columnIndex maps normalized header names to their position.
type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (c columnIndex) find(name string) (int, bool) {
	i, ok := c[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// buildRecords turns raw rows into records. rows[0] is the header.
func buildRecords(path string, rows [][]string, opts types.InputConfig) (*LoadResult, error) {
	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil, &types.FormatError{Path: path, Reason: "file is empty"}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	cols := newColumnIndex(header)

	idCol := orDefault(opts.IDColumn, types.DefaultIDColumn)
	titleCol := orDefault(opts.TitleColumn, types.DefaultTitleColumn)
	abstractCol := orDefault(opts.AbstractColumn, types.DefaultAbstractColumn)

	res := &LoadResult{Columns: header}

	titleIdx, ok := cols.find(titleCol)
	if !ok {
		return nil, &types.FormatError{Path: path, Reason: fmt.Sprintf("missing required column %q", titleCol)}
	}

	idIdx, hasID := cols.find(idCol)
	if !hasID {
		if !opts.IndexIDs {
			return nil, &types.FormatError{Path: path, Reason: fmt.Sprintf("missing id column %q (set index_ids to use row numbers)", idCol)}
		}
		idIdx = -1
		res.Warnings = append(res.Warnings, fmt.Sprintf("id column %q not found; using row numbers as ids, resume may be inaccurate if rows are reordered", idCol))
	}

	abstractIdx, hasAbstract := cols.find(abstractCol)
	if !hasAbstract {
		abstractIdx = -1
		res.Warnings = append(res.Warnings, fmt.Sprintf("abstract column %q not found; records carry titles only", abstractCol))
	}

	seen := make(map[string]int)
	ragged := 0
	for i, raw := range rows[1:] {
		rowNum := i + 1
		if len(raw) != len(header) {
			ragged++
		}
		row := fitRow(raw, len(header))

		id := ""
		if idIdx >= 0 {
			id = strings.TrimSpace(row[idIdx])
		} else {
			id = strconv.Itoa(rowNum)
		}
		if id == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: empty id, skipped", rowNum))
			continue
		}

		title := strings.TrimSpace(row[titleIdx])
		if title == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (id %s): empty title, skipped", rowNum, id))
			continue
		}

		if first, dup := seen[id]; dup {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: duplicate id %s (first seen at row %d), skipped", rowNum, id, first))
			continue
		}
		seen[id] = rowNum

		abstract := ""
		if abstractIdx >= 0 {
			abstract = strings.TrimSpace(row[abstractIdx])
		}

		meta := make(map[string]string, len(header))
		for c, name := range header {
			if name == "" || c == titleIdx || c == abstractIdx {
				continue
			}
			meta[name] = row[c]
		}

		res.Records = append(res.Records, types.Record{
			ID:         id,
			SourceText: SourceText(title, abstract),
			Metadata:   meta,
			Row:        rowNum,
		})
	}

	if ragged > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d ragged rows padded or truncated to %d columns", ragged, len(header)))
	}
	return res, nil
}

// SourceText builds the text sent to the model for one record.
func SourceText(title, abstract string) string {
	return "Title: " + title + "\n\nAbstract: " + abstract
}

// fitRow pads or truncates row to width.
func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// dropBlankRows removes rows whose cells are all empty. Spreadsheet exports
// often end with a few of them.
func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
