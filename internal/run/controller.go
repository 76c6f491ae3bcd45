// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package run drives one extraction pass over an input table. A Controller
// merges the checkpoint with the records, feeds the worker pool, persists
// each terminal result, and publishes throttled progress snapshots.
//
// A single goroutine owns the run state, the queue, and the checkpoint
// store. Workers hand results back over a channel; commands arrive the same
// way, so no run state is shared between goroutines.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/litminer/internal/checkpoint"
	"github.com/pdiddy/litminer/internal/extract"
	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/pool"
	"github.com/pdiddy/litminer/internal/prompt"
	"github.com/pdiddy/litminer/internal/records"
	"github.com/pdiddy/litminer/pkg/types"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("run: controller already started")

// Summary is the outcome of a run.
type Summary struct {
	RunID string          `json:"run_id" yaml:"run_id"`
	State types.RunStatus `json:"state" yaml:"state"`

	// Records is the number of records in the input.
	Records int `json:"records" yaml:"records"`

	// Total is the run's scope: records resumed from the checkpoint plus
	// records queued by this run. Completed and Failed include resumed
	// entries, so Completed+Failed == Total when State is completed.
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`

	// Skipped counts records that already had an entry at start.
	Skipped int `json:"skipped" yaml:"skipped"`

	// Dispatched counts tasks handed to the worker pool.
	Dispatched int `json:"dispatched" yaml:"dispatched"`

	// Pending counts input records still without an entry.
	Pending int `json:"pending" yaml:"pending"`

	Duration       time.Duration           `json:"duration" yaml:"duration"`
	FailuresByKind map[types.ErrorKind]int `json:"failures_by_kind,omitempty" yaml:"failures_by_kind,omitempty"`
}

type command int

const (
	cmdPause command = iota
	cmdResume
	cmdCancel
	cmdAbort
)

func (c command) String() string {
	return [...]string{"pause", "resume", "cancel", "abort"}[c]
}

// Controller runs one extraction pass. It is single-use: create a new
// Controller for every run.
type Controller struct {
	cfg      types.RunConfig
	client   llm.Client
	logger   *slog.Logger
	out      io.Writer
	tmpl     *prompt.Template
	now      func() time.Time
	poolOpts []pool.Option

	openStore func(string, checkpoint.Options) (entryStore, error)

	runID    string
	cmds     chan command
	progress chan types.Progress
	done     chan struct{}
	started  atomic.Bool

	mu    sync.Mutex
	state types.RunStatus
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger. It is passed on to the pool and
// the checkpoint store.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithOutput sets the writer that receives one line per finished record.
func WithOutput(w io.Writer) Option { return func(c *Controller) { c.out = w } }

// WithTemplate uses t instead of loading the prompts directory.
func WithTemplate(t prompt.Template) Option { return func(c *Controller) { c.tmpl = &t } }

// WithClock sets the clock used for entry timestamps and durations.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithPoolOptions passes options to the worker pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(c *Controller) { c.poolOpts = append(c.poolOpts, opts...) }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option { return func(c *Controller) { c.runID = id } }

// NewController creates a controller for cfg. Zero-valued settings take
// their defaults.
func NewController(cfg types.RunConfig, client llm.Client, opts ...Option) *Controller {
	cfg.ApplyDefaults()
	c := &Controller{
		cfg:       cfg,
		client:    client,
		logger:    logger.Default(),
		out:       io.Discard,
		now:       time.Now,
		openStore: openCheckpoint,
		runID:     uuid.NewString(),
		cmds:      make(chan command, 16),
		progress:  make(chan types.Progress, 1),
		done:      make(chan struct{}),
		state:     types.RunIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunID returns the id stamped on every entry this run writes.
func (c *Controller) RunID() string { return c.runID }

// State returns the current state. It is safe to call from any goroutine.
func (c *Controller) State() types.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s types.RunStatus) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("run state", slog.String("from", string(prev)), slog.String("to", string(s)))
	}
}

// Progress returns the snapshot channel. It holds at most one snapshot;
// a consumer that falls behind sees only the latest. The channel receives
// a final snapshot and is closed when Run returns.
func (c *Controller) Progress() <-chan types.Progress { return c.progress }

// Pause stops dispatching new tasks. In-flight tasks finish and are
// persisted.
func (c *Controller) Pause() { c.send(cmdPause) }

// Resume continues a paused run.
func (c *Controller) Resume() { c.send(cmdResume) }

// Cancel stops dispatching and ends the run once in-flight tasks finish.
// With cancel policy "abandon" it behaves like Abort.
func (c *Controller) Cancel() { c.send(cmdCancel) }

// Abort stops dispatching and cancels in-flight tasks. Tasks that end
// abandoned get no entry, so the next run retries those records; a call
// that completes regardless is still persisted.
func (c *Controller) Abort() { c.send(cmdAbort) }

func (c *Controller) send(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	default:
		c.logger.Warn("run command dropped", slog.String("command", cmd.String()))
	}
}

// Run executes the pass and blocks until it ends. Loading failures
// (template, input, checkpoint) and persistence failures end the run in
// state fatal_error and are returned. Cancelling ctx acts as Abort; the
// run then ends in state cancelled with a nil error.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if !c.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyStarted
	}
	defer close(c.done)

	start := c.now()
	c.setState(types.RunLoading)

	s, err := c.load()
	if err != nil {
		c.logger.Error("run failed to start", slog.String("error", err.Error()))
		c.setState(types.RunFatalError)
		c.finish(types.Progress{State: types.RunFatalError, Elapsed: c.now().Sub(start)})
		return Summary{RunID: c.runID, State: types.RunFatalError, Duration: c.now().Sub(start)}, err
	}

	l := newLoop(ctx, c, s, start)
	c.setState(types.RunRunning)
	c.logger.Info("run started",
		slog.String("run_id", c.runID),
		slog.String("provider", c.client.Name()),
		slog.String("model", c.client.Model()),
		slog.String("template", s.tmpl.Name),
		slog.Int("records", s.plan.Records),
		slog.Int("resumed", s.plan.Skipped()),
		slog.Int("queued", len(s.plan.Queue)),
		slog.Int("concurrency", l.pool.Size()),
	)
	l.publish()

	l.run(ctx)
	sum, err := l.close()

	c.setState(sum.State)
	c.finish(l.snapshot())
	c.logger.Info("run finished",
		slog.String("state", string(sum.State)),
		slog.Int("completed", sum.Completed),
		slog.Int("failed", sum.Failed),
		slog.Int("pending", sum.Pending),
		slog.Duration("duration", sum.Duration),
	)
	return sum, err
}

// session is what Loading produces.
type session struct {
	plan   Plan
	tmpl   prompt.Template
	parser *extract.Parser
	store  entryStore
}

// entryStore is the part of *checkpoint.Store the run loop uses.
type entryStore interface {
	Append(types.CheckpointEntry) error
	Flush() error
	Close() error
	Entries() map[string]types.CheckpointEntry
}

func openCheckpoint(path string, opts checkpoint.Options) (entryStore, error) {
	s, _, err := checkpoint.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Controller) load() (*session, error) {
	tmpl, err := c.template()
	if err != nil {
		return nil, err
	}
	parser, err := extract.NewParser(tmpl.Schema)
	if err != nil {
		return nil, &types.TemplateError{Template: tmpl.Name, Reason: "invalid output schema: " + err.Error()}
	}

	loaded, err := records.Load(c.cfg.Input.Path, c.cfg.Input)
	if err != nil {
		return nil, err
	}
	for _, w := range loaded.Warnings {
		c.logger.Warn("input", slog.String("warning", w))
	}

	store, err := c.openStore(c.cfg.Checkpoint.Path, checkpoint.Options{
		SaveEvery: c.cfg.Checkpoint.SaveEvery,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		plan:   newPlan(loaded.Records, store.Entries(), c.cfg.Limit),
		tmpl:   tmpl,
		parser: parser,
		store:  store,
	}, nil
}

func (c *Controller) template() (prompt.Template, error) {
	if c.tmpl != nil {
		if err := prompt.Validate(c.tmpl.Text); err != nil {
			return prompt.Template{}, withTemplateName(err, c.tmpl.Name)
		}
		return *c.tmpl, nil
	}
	lib, err := prompt.LoadDir(c.cfg.Prompt.Dir)
	if err != nil {
		return prompt.Template{}, err
	}
	for _, w := range lib.Warnings {
		c.logger.Warn("prompts", slog.String("warning", w))
	}
	return lib.Resolve(c.cfg.Prompt.Template)
}

func withTemplateName(err error, name string) error {
	var te *types.TemplateError
	if errors.As(err, &te) && te.Template == "" {
		return &types.TemplateError{Template: name, Reason: te.Reason}
	}
	return err
}

// finish publishes the final snapshot and closes the progress channel.
func (c *Controller) finish(p types.Progress) {
	c.publish(p)
	close(c.progress)
}

// publish replaces any unread snapshot with p.
func (c *Controller) publish(p types.Progress) {
	for {
		select {
		case c.progress <- p:
			return
		default:
		}
		select {
		case <-c.progress:
		default:
		}
	}
}

func (c *Controller) report(r types.Result) {
	if r.OK() {
		fmt.Fprintf(c.out, "ok      %s (%d fields, attempt %d)\n", r.RecordID, len(r.Fields), r.AttemptCount)
		return
	}
	fmt.Fprintf(c.out, "failed  %s: %s: %s\n", r.RecordID, r.ErrorKind, r.Message)
}
