// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pdiddy/litminer/pkg/types"
)

// Filter selects checkpoint entries for removal. An empty Filter selects
// nothing, which turns Clear into a compaction.
type Filter struct {
	All      bool
	Failures bool
	Kinds    []types.ErrorKind
	IDs      []string
}

// Match reports whether e is selected.
func (f Filter) Match(e types.CheckpointEntry) bool {
	if f.All {
		return true
	}
	for _, id := range f.IDs {
		if e.RecordID == id {
			return true
		}
	}
	if e.Status != types.StatusFailure {
		return false
	}
	if f.Failures && len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.ErrorKind == k {
			return true
		}
	}
	return false
}

// ClearReport summarizes a Clear.
type ClearReport struct {
	Removed int
	Kept    int
	Dropped int // corrupt, uncommitted, torn, or superseded lines
}

// Clear rewrites the checkpoint at path without the entries matched by f,
// so those records are processed again on the next run. The new file
// replaces the old one atomically. Clear must not run while a Store has
// the file open.
func Clear(path string, f Filter) (ClearReport, error) {
	var report ClearReport

	in, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, &types.PersistenceError{Op: "clear", Path: path, Err: err}
	}

	var (
		order []string
		lines = make(map[string][]byte)
		load  LoadReport
	)
	err = scan(in, &load, func(e types.CheckpointEntry, raw []byte) {
		if _, seen := lines[e.RecordID]; seen {
			report.Dropped++
		} else {
			order = append(order, e.RecordID)
		}
		if f.Match(e) {
			lines[e.RecordID] = nil
			return
		}
		lines[e.RecordID] = append([]byte(nil), raw...)
	})
	in.Close()
	if err != nil {
		return report, &types.PersistenceError{Op: "clear", Path: path, Err: err}
	}
	report.Dropped += load.Corrupt + load.Uncommitted
	if load.TruncatedTail {
		report.Dropped++
	}

	var buf bytes.Buffer
	for _, id := range order {
		raw := lines[id]
		if raw == nil {
			report.Removed++
			continue
		}
		buf.Write(raw)
		buf.WriteByte('\n')
		report.Kept++
	}
	if report.Kept > 0 {
		appendCommit(&buf, report.Kept)
	}

	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return report, &types.PersistenceError{Op: "clear", Path: path, Err: err}
	}
	return report, nil
}

// writeAtomic replaces path with data via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
