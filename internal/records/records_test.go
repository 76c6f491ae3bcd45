// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package records

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/pdiddy/litminer/pkg/types"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func defaultOpts() types.InputConfig {
	return types.InputConfig{}
}

func ids(recs []types.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestLoad_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.csv", []byte(
		"UID,Article Title,Abstract,Year\n"+
			"WOS:1,Graphene strength,We measure tensile strength.,2021\n"+
			"WOS:2,\"Perovskite, stable\",\"Line one\nline two\",2022\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{"UID", "Article Title", "Abstract", "Year"}, res.Columns)

	r := res.Records[0]
	assert.Equal(t, "WOS:1", r.ID)
	assert.Equal(t, "Title: Graphene strength\n\nAbstract: We measure tensile strength.", r.SourceText)
	assert.Equal(t, map[string]string{"UID": "WOS:1", "Year": "2021"}, r.Metadata)
	assert.Equal(t, 1, r.Row)

	assert.Equal(t, "Title: Perovskite, stable\n\nAbstract: Line one\nline two", res.Records[1].SourceText)
}

func TestLoad_HeaderMatchingIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.csv", []byte(" uid , article title ,ABSTRACT\n7,T,A\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "7", res.Records[0].ID)
}

func TestLoad_CustomColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.csv", []byte("DOI,TI,AB\n10.1/x,T,A\n"))

	res, err := Load(path, types.InputConfig{IDColumn: "DOI", TitleColumn: "TI", AbstractColumn: "AB"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "10.1/x", res.Records[0].ID)
	assert.Equal(t, "Title: T\n\nAbstract: A", res.Records[0].SourceText)
}

func TestLoad_StripsBOM(t *testing.T) {
	dir := t.TempDir()
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("UID,Article Title,Abstract\n1,T,A\n")...)
	path := writeFile(t, dir, "bom.csv", data)

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "UID", res.Columns[0])
}

func TestLoad_GBKFallback(t *testing.T) {
	dir := t.TempDir()
	utf := "UID,Article Title,Abstract\n1,石墨烯的力学性能,摘要内容\n"
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(utf))
	require.NoError(t, err)
	path := writeFile(t, dir, "gbk.csv", gbk)

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Contains(t, res.Records[0].SourceText, "石墨烯的力学性能")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "GBK")
}

func TestLoad_RaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ragged.csv", []byte(
		"UID,Article Title,Abstract,Year\n"+
			"1,Short row\n"+
			"2,Long row,A,2020,extra,cells\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Title: Short row\n\nAbstract: ", res.Records[0].SourceText)
	assert.Equal(t, "", res.Records[0].Metadata["Year"])
	assert.Equal(t, "2020", res.Records[1].Metadata["Year"])
	assert.True(t, containsWarning(res.Warnings, "2 ragged rows"))
}

func TestLoad_DuplicateIDsKeepFirst(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dup.csv", []byte(
		"UID,Article Title,Abstract\n"+
			"a,First,x\n"+
			"b,Second,x\n"+
			"a,Shadow,x\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Records))
	assert.Contains(t, res.Records[0].SourceText, "First")
	assert.True(t, containsWarning(res.Warnings, "duplicate id a"))
}

func TestLoad_SkipsEmptyIDAndTitle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gaps.csv", []byte(
		"UID,Article Title,Abstract\n"+
			",No id,x\n"+
			"2,,x\n"+
			"3,Kept,x\n"+
			",,\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(res.Records))
	assert.True(t, containsWarning(res.Warnings, "empty id"))
	assert.True(t, containsWarning(res.Warnings, "empty title"))
}

func TestLoad_IndexIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "noid.csv", []byte("Article Title,Abstract\nA,x\nB,y\n"))

	_, err := Load(path, defaultOpts())
	var fe *types.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Reason, "UID")

	res, err := Load(path, types.InputConfig{IndexIDs: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(res.Records))
	assert.True(t, containsWarning(res.Warnings, "row numbers"))
}

func TestLoad_MissingAbstractColumnWarns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "noabs.csv", []byte("UID,Article Title\n1,Only title\n"))

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Title: Only title\n\nAbstract: ", res.Records[0].SourceText)
	assert.True(t, containsWarning(res.Warnings, "abstract column"))
}

func TestLoad_FormatErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		file   string
		data   string
		reason string
	}{
		{name: "empty file", file: "empty.csv", data: "", reason: "empty"},
		{name: "blank lines only", file: "blank.csv", data: "\n\n,,\n", reason: "empty"},
		{name: "missing title column", file: "notitle.csv", data: "UID,Abstract\n1,x\n", reason: "Article Title"},
		{name: "unsupported type", file: "in.json", data: "{}", reason: "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, []byte(tt.data))
			_, err := Load(path, defaultOpts())
			var fe *types.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Contains(t, fe.Reason, tt.reason)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), defaultOpts())
	var fe *types.FormatError
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_XLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.xlsx")

	f := excelize.NewFile()
	const sheet = "Sheet1"
	rows := [][]any{
		{"UID", "Article Title", "Abstract", "Journal"},
		{"x1", "Battery anodes", "Silicon anodes swell.", "Nature"},
		{"x2", "Catalysts", "", "Science"},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := Load(path, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2"}, ids(res.Records))
	assert.Equal(t, "Nature", res.Records[0].Metadata["Journal"])
	assert.Equal(t, "Title: Catalysts\n\nAbstract: ", res.Records[1].SourceText)

	_, err = Load(path, types.InputConfig{Sheet: "Missing"})
	var fe *types.FormatError
	require.True(t, errors.As(err, &fe))
}

func containsWarning(warnings []string, sub string) bool {
	for _, w := range warnings {
		if strings.Contains(w, sub) {
			return true
		}
	}
	return false
}
