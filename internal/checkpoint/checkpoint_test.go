// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/pkg/types"
)

var ts0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func success(id string) types.CheckpointEntry {
	return types.EntryFromResult(types.Success(id, map[string]any{"material": "graphene"}, `{"material":"graphene"}`, 1), "run-1", ts0)
}

func failure(id string, kind types.ErrorKind) types.CheckpointEntry {
	return types.EntryFromResult(types.Failure(id, kind, "boom", 4), "run-1", ts0)
}

func openStore(t *testing.T, path string, saveEvery int) *Store {
	t.Helper()
	s, _, err := Open(path, Options{SaveEvery: saveEvery, Logger: logger.Discard()})
	require.NoError(t, err)
	return s
}

// readLines returns the entry lines of the file, without commit lines.
func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" || strings.HasPrefix(line, `{"commit"`) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func appendRaw(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLoad_MissingFile(t *testing.T) {
	entries, report, err := Load(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, LoadReport{}, report)
}

func TestAppendFlushLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "run.jsonl")
	s := openStore(t, path, 0)

	require.NoError(t, s.Append(success("a")))
	require.NoError(t, s.Append(failure("b", types.KindPermanentAPI)))
	assert.True(t, s.Has("a"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Pending())

	assert.Empty(t, readLines(t, path), "nothing reaches the file before Flush")

	require.NoError(t, s.Flush())
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, readLines(t, path), 2)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "{\"commit\":2}\n"), "a flush ends with its commit line")

	entries, report, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Lines)
	assert.Equal(t, 1, report.Batches)
	assert.False(t, report.Dirty())
	require.Len(t, entries, 2)

	a := entries["a"]
	assert.Equal(t, types.StatusSuccess, a.Status)
	assert.Equal(t, "graphene", a.Fields["material"])
	assert.Equal(t, "run-1", a.RunID)
	assert.True(t, ts0.Equal(a.Timestamp))

	b := entries["b"]
	assert.Equal(t, types.StatusFailure, b.Status)
	assert.Equal(t, types.KindPermanentAPI, b.ErrorKind)
	assert.Equal(t, 4, b.AttemptCount)
}

func TestAppend_RejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := openStore(t, path, 0)
	require.NoError(t, s.Append(success("a")))
	require.NoError(t, s.Close())

	s = openStore(t, path, 0)
	defer s.Close()
	err := s.Append(failure("a", types.KindParse))
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.Append(success("b")))
	assert.ErrorIs(t, s.Append(success("b")), ErrDuplicate)
}

func TestAppend_AutoFlushEverySaveInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := openStore(t, path, 3)
	defer s.Close()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Append(success(fmt.Sprintf("r%d", i))))
	}
	assert.Len(t, readLines(t, path), 6)
	assert.Equal(t, 1, s.Pending())
}

func TestCrashMidFlush_TornTailIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := openStore(t, path, 0)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(success(id)))
	}
	require.NoError(t, s.Close())

	// Simulate a crash part way through the next single-write flush.
	appendRaw(t, path, `{"record_id":"d","status":"succ`)

	entries, report, err := Load(path)
	require.NoError(t, err)
	assert.True(t, report.TruncatedTail)
	assert.Len(t, entries, 3)
	assert.NotContains(t, entries, "d")

	s = openStore(t, path, 0)
	assert.False(t, s.Has("d"))
	require.NoError(t, s.Append(success("d")))
	require.NoError(t, s.Close())

	entries, report, err = Load(path)
	require.NoError(t, err)
	assert.False(t, report.TruncatedTail)
	assert.Equal(t, 0, report.Corrupt)
	assert.Len(t, entries, 4)
	assert.Len(t, readLines(t, path), 4)
}

func TestCrashMidFlush_UnfinishedBatchIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := openStore(t, path, 0)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(success(id)))
	}
	require.NoError(t, s.Close())
	committed, err := os.Stat(path)
	require.NoError(t, err)

	// The next batch reached the disk up to the middle of its last line:
	// d and e are complete, but the commit line was never written.
	var batch strings.Builder
	for _, id := range []string{"d", "e", "f"} {
		line, err := json.Marshal(success(id))
		require.NoError(t, err)
		batch.Write(line)
		batch.WriteByte('\n')
	}
	appendRaw(t, path, batch.String()[:batch.Len()-10])

	entries, report, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, id := range []string{"d", "e", "f"} {
		assert.NotContains(t, entries, id)
	}
	assert.Equal(t, 2, report.Uncommitted)
	assert.True(t, report.TruncatedTail)
	assert.Equal(t, committed.Size(), report.ValidSize)

	s = openStore(t, path, 0)
	assert.False(t, s.Has("d"))
	require.NoError(t, s.Append(success("d")))
	require.NoError(t, s.Close())

	entries, report, err = Load(path)
	require.NoError(t, err)
	assert.False(t, report.Dirty())
	assert.Equal(t, 2, report.Batches)
	assert.Len(t, entries, 4)
	assert.Len(t, readLines(t, path), 4)
}

func TestLoad_CompleteLinesWithoutCommitAreIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	content := `{"record_id":"a","status":"success","attempt_count":1,"timestamp":"2026-03-01T12:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, report, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, report.Uncommitted)
	assert.False(t, report.TruncatedTail)
	assert.Equal(t, int64(0), report.ValidSize)
}

func TestLoad_SkipsCorruptInteriorLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	content := `{"record_id":"a","status":"success","attempt_count":1,"timestamp":"2026-03-01T12:00:00Z"}` + "\n" +
		"garbage line\n" +
		`{"status":"success"}` + "\n" +
		"\n" +
		`{"record_id":"b","status":"failure","error_kind":"parse","attempt_count":4,"timestamp":"2026-03-01T12:00:00Z"}` + "\n" +
		`{"commit":5}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, report, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Corrupt)
	assert.Equal(t, 5, report.Lines)
	assert.Len(t, entries, 2)
	assert.Equal(t, types.KindParse, entries["b"].ErrorKind)
}

func TestLoad_LaterLineWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	content := `{"record_id":"a","status":"failure","error_kind":"parse","attempt_count":4,"timestamp":"2026-03-01T12:00:00Z"}` + "\n" +
		`{"commit":1}` + "\n" +
		`{"record_id":"a","status":"success","attempt_count":1,"timestamp":"2026-03-02T12:00:00Z"}` + "\n" +
		`{"commit":1}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusSuccess, entries["a"].Status)
}

type failingWriter struct {
	writeErr, syncErr error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return len(p), nil
}
func (w *failingWriter) Sync() error  { return w.syncErr }
func (w *failingWriter) Close() error { return nil }

func TestFlush_WriteErrorPoisonsStore(t *testing.T) {
	tests := []struct {
		name string
		w    *failingWriter
		op   string
	}{
		{name: "write", w: &failingWriter{writeErr: errors.New("disk full")}, op: "write"},
		{name: "sync", w: &failingWriter{syncErr: errors.New("io error")}, op: "sync"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t, filepath.Join(t.TempDir(), "run.jsonl"), 0)
			file := s.w
			defer file.Close()
			s.w = tt.w

			require.NoError(t, s.Append(success("a")))
			err := s.Flush()

			var pe *types.PersistenceError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.op, pe.Op)

			assert.Equal(t, err, s.Append(success("b")))
			assert.Equal(t, err, s.Flush())
			assert.Equal(t, err, s.Close())
		})
	}
}

func TestAppend_AutoFlushFailureIsReturned(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "run.jsonl"), 1)
	file := s.w
	defer file.Close()
	s.w = &failingWriter{writeErr: errors.New("disk full")}

	err := s.Append(success("a"))
	var pe *types.PersistenceError
	require.True(t, errors.As(err, &pe))
}

func TestClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	s := openStore(t, path, 0)
	require.NoError(t, s.Append(success("a")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Len(t, readLines(t, path), 1, "Close flushes")
	assert.ErrorIs(t, s.Append(success("b")), ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
}

func TestOpen_UnreadablePath(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Open(dir, Options{Logger: logger.Discard()})
	var pe *types.PersistenceError
	require.True(t, errors.As(err, &pe))
}

func TestEntriesIsACopy(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "run.jsonl"), 0)
	defer s.Close()
	require.NoError(t, s.Append(success("a")))

	m := s.Entries()
	delete(m, "a")
	assert.True(t, s.Has("a"))
}
