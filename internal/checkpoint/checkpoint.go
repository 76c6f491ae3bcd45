// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists one terminal result per record in an
// append-only JSON Lines file, so an interrupted run can resume without
// repeating finished work.
//
// Appends are buffered in memory and reach the file on Flush as one batch:
// the entry lines followed by a commit line {"commit":<n>}, written with a
// single write and then synced. Load only accepts entries of committed
// batches, so a crash during a flush leaves none of that batch visible.
// Open truncates the file back to the last commit before appending.
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/telemetry"
	"github.com/pdiddy/litminer/pkg/types"
)

// ErrDuplicate is returned by Append for a record id that already has an
// entry.
var ErrDuplicate = errors.New("record already checkpointed")

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("checkpoint store closed")

// LoadReport describes what Load found besides the entries.
type LoadReport struct {
	// Lines is the number of complete lines in committed batches, not
	// counting commit lines.
	Lines int

	// Batches is the number of committed batches.
	Batches int

	// Corrupt counts lines of committed batches that could not be
	// decoded. They are skipped.
	Corrupt int

	// Uncommitted counts complete lines after the last commit line. They
	// belong to a flush that never finished and are ignored.
	Uncommitted int

	// TruncatedTail is set when the file ends in a partial line.
	TruncatedTail bool

	// ValidSize is the byte length of the file up to the end of the last
	// commit line.
	ValidSize int64
}

// Dirty reports whether the file holds bytes after the last commit that
// Open will cut off.
func (r LoadReport) Dirty() bool {
	return r.TruncatedTail || r.Uncommitted > 0
}

// commitLine closes a batch of n entry lines.
type commitLine struct {
	Commit *int `json:"commit"`
}

// Load reads the checkpoint at path. A missing file yields an empty map.
// When an id appears more than once the later line wins.
func Load(path string) (map[string]types.CheckpointEntry, LoadReport, error) {
	entries := make(map[string]types.CheckpointEntry)
	var report LoadReport

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, report, nil
		}
		return nil, report, &types.PersistenceError{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	err = scan(f, &report, func(e types.CheckpointEntry, _ []byte) {
		entries[e.RecordID] = e
	})
	if err != nil {
		return nil, report, &types.PersistenceError{Op: "load", Path: path, Err: err}
	}
	return entries, report, nil
}

type scannedLine struct {
	entry types.CheckpointEntry
	raw   []byte
	ok    bool
}

// scan decodes r line by line. Entries are held back until the commit line
// that closes their batch, then fn is called for each valid one with the
// raw line without its newline.
func scan(r io.Reader, report *LoadReport, fn func(types.CheckpointEntry, []byte)) error {
	br := bufio.NewReaderSize(r, 64<<10)
	var (
		batch  []scannedLine
		lines  int
		offset int64
	)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			offset += int64(len(line))
			body := bytes.TrimSpace(line)
			switch {
			case len(body) == 0:
				lines++
			case isCommit(body):
				commitBatch(batch, report, fn)
				report.Lines += lines
				report.Batches++
				report.ValidSize = offset
				batch, lines = batch[:0], 0
			default:
				lines++
				var e types.CheckpointEntry
				if jerr := json.Unmarshal(body, &e); jerr != nil || e.RecordID == "" {
					batch = append(batch, scannedLine{})
				} else {
					batch = append(batch, scannedLine{entry: e, raw: append([]byte(nil), body...), ok: true})
				}
			}
		} else if len(bytes.TrimSpace(line)) > 0 {
			report.TruncatedTail = true
		}

		if errors.Is(err, io.EOF) {
			report.Uncommitted = len(batch)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func isCommit(body []byte) bool {
	if !bytes.HasPrefix(body, []byte(`{"commit"`)) {
		return false
	}
	var c commitLine
	return json.Unmarshal(body, &c) == nil && c.Commit != nil
}

func commitBatch(batch []scannedLine, report *LoadReport, fn func(types.CheckpointEntry, []byte)) {
	for _, l := range batch {
		if !l.ok {
			report.Corrupt++
			continue
		}
		fn(l.entry, l.raw)
	}
}

// appendCommit closes the batch in buf.
func appendCommit(buf *bytes.Buffer, n int) {
	fmt.Fprintf(buf, "{\"commit\":%d}\n", n)
}

// syncWriter is the part of *os.File the store writes through.
type syncWriter interface {
	io.Writer
	Sync() error
	Close() error
}

// Options configures a Store.
type Options struct {
	// SaveEvery flushes automatically once this many entries are pending.
	// Zero disables automatic flushing.
	SaveEvery int

	Logger *slog.Logger
}

// Store appends entries to a checkpoint file. A Store assumes it is the
// only writer of its file for its whole lifetime.
type Store struct {
	path      string
	saveEvery int
	logger    *slog.Logger

	mu      sync.Mutex
	w       syncWriter
	entries map[string]types.CheckpointEntry
	buf     bytes.Buffer
	pending int
	err     error
	closed  bool
}

// Open loads the checkpoint at path, truncates everything after the last
// commit, and opens the file for appending. The returned report describes the loaded state.
func Open(path string, opts Options) (*Store, LoadReport, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, LoadReport{}, &types.PersistenceError{Op: "open", Path: path, Err: err}
		}
	}

	entries, report, err := Load(path)
	if err != nil {
		return nil, report, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	if report.Dirty() {
		if err := os.Truncate(path, report.ValidSize); err != nil {
			return nil, report, &types.PersistenceError{Op: "truncate", Path: path, Err: err}
		}
		log.Warn("dropped unfinished checkpoint batch",
			slog.String("path", path),
			slog.Int("lines", report.Uncommitted),
			slog.Bool("partial_line", report.TruncatedTail),
			slog.Int64("valid_bytes", report.ValidSize))
	}
	if report.Corrupt > 0 {
		log.Warn("skipped corrupt checkpoint lines", slog.String("path", path), slog.Int("count", report.Corrupt))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, report, &types.PersistenceError{Op: "open", Path: path, Err: err}
	}

	return &Store{
		path:      path,
		saveEvery: opts.SaveEvery,
		logger:    log,
		w:         f,
		entries:   entries,
	}, report, nil
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Append records e. The entry is visible to Has and Entries at once and
// reaches the file on the next Flush. A second entry for the same record
// id is rejected with ErrDuplicate.
func (s *Store) Append(e types.CheckpointEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return err
	}
	if _, dup := s.entries[e.RecordID]; dup {
		return fmt.Errorf("append %s: %w", e.RecordID, ErrDuplicate)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return &types.PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	s.buf.Write(line)
	s.buf.WriteByte('\n')
	s.pending++
	s.entries[e.RecordID] = e
	telemetry.CheckpointEntries.Inc()

	if s.saveEvery > 0 && s.pending >= s.saveEvery {
		return s.flushLocked()
	}
	return nil
}

// Flush writes pending entries and their commit line in one write and
// syncs the file. After a
// failed write or sync the store is poisoned: every later call returns
// the same *types.PersistenceError.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.pending == 0 {
		return nil
	}
	appendCommit(&s.buf, s.pending)
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		s.err = &types.PersistenceError{Op: "write", Path: s.path, Err: err}
		return s.err
	}
	if err := s.w.Sync(); err != nil {
		s.err = &types.PersistenceError{Op: "sync", Path: s.path, Err: err}
		return s.err
	}

	s.logger.Debug("checkpoint flushed", slog.Int("entries", s.pending), slog.Int("bytes", s.buf.Len()))
	telemetry.CheckpointFlushes.Inc()
	s.buf.Reset()
	s.pending = 0
	return nil
}

func (s *Store) usable() error {
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Pending returns the number of entries not yet flushed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Has reports whether id has an entry, flushed or not.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of all entries keyed by record id.
func (s *Store) Entries() map[string]types.CheckpointEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.CheckpointEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Close flushes pending entries and closes the file. Closing twice is a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var flushErr error
	if s.err == nil {
		flushErr = s.flushLocked()
	} else {
		flushErr = s.err
	}
	if err := s.w.Close(); err != nil && flushErr == nil {
		flushErr = &types.PersistenceError{Op: "close", Path: s.path, Err: err}
	}
	return flushErr
}
