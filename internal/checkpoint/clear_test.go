// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litminer/pkg/types"
)

func TestFilterMatch(t *testing.T) {
	ok := success("a")
	parse := failure("b", types.KindParse)
	perm := failure("c", types.KindPermanentAPI)

	tests := []struct {
		name   string
		filter Filter
		want   []bool // ok, parse, perm
	}{
		{"empty", Filter{}, []bool{false, false, false}},
		{"all", Filter{All: true}, []bool{true, true, true}},
		{"failures", Filter{Failures: true}, []bool{false, true, true}},
		{"kinds", Filter{Kinds: []types.ErrorKind{types.KindParse}}, []bool{false, true, false}},
		{"failures narrowed by kind", Filter{Failures: true, Kinds: []types.ErrorKind{types.KindPermanentAPI}}, []bool{false, false, true}},
		{"ids", Filter{IDs: []string{"a", "c"}}, []bool{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, []bool{tt.filter.Match(ok), tt.filter.Match(parse), tt.filter.Match(perm)})
		})
	}
}

func seed(t *testing.T, path string) {
	t.Helper()
	s := openStore(t, path, 0)
	require.NoError(t, s.Append(success("a")))
	require.NoError(t, s.Append(failure("b", types.KindParse)))
	require.NoError(t, s.Append(success("c")))
	require.NoError(t, s.Append(failure("d", types.KindPermanentAPI)))
	require.NoError(t, s.Close())
}

func TestClear_Failures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	seed(t, path)

	report, err := Clear(path, Filter{Failures: true})
	require.NoError(t, err)
	assert.Equal(t, ClearReport{Removed: 2, Kept: 2}, report)

	entries, _, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "a")
	assert.Contains(t, entries, "c")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestClear_IDsAndAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	seed(t, path)

	report, err := Clear(path, Filter{IDs: []string{"c", "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 3, report.Kept)

	report, err = Clear(path, Filter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Removed)

	entries, _, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClear_CompactsTornAndCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	seed(t, path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n{\"record_id\":\"e\"")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := Clear(path, Filter{})
	require.NoError(t, err)
	assert.Equal(t, ClearReport{Kept: 4, Dropped: 2}, report)

	entries, load, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, 0, load.Corrupt)
	assert.False(t, load.TruncatedTail)
}

func TestClear_MissingFile(t *testing.T) {
	report, err := Clear(filepath.Join(t.TempDir(), "none.jsonl"), Filter{All: true})
	require.NoError(t, err)
	assert.Equal(t, ClearReport{}, report)
}

func TestClear_ReenablesProcessing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	seed(t, path)

	_, err := Clear(path, Filter{IDs: []string{"b"}})
	require.NoError(t, err)

	s := openStore(t, path, 0)
	defer s.Close()
	assert.False(t, s.Has("b"))
	require.NoError(t, s.Append(success("b")))
}
