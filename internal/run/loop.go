// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/pdiddy/litminer/internal/pool"
	"github.com/pdiddy/litminer/internal/prompt"
	"github.com/pdiddy/litminer/internal/telemetry"
	"github.com/pdiddy/litminer/pkg/types"
)

// loop is the state owned by the Run goroutine while the run is active.
type loop struct {
	c     *Controller
	s     *session
	pool  *pool.Pool
	start time.Time

	runCtx  context.Context
	abortFn context.CancelFunc
	results chan types.Result

	queue      []types.Record
	state      types.RunState
	status     types.RunStatus
	failures   map[types.ErrorKind]int
	dispatched int

	stopping bool
	aborted  bool
	fatal    error
	dirty    bool
}

func newLoop(ctx context.Context, c *Controller, s *session, start time.Time) *loop {
	p := pool.New(c.client, s.parser, c.cfg.Pool, append([]pool.Option{pool.WithLogger(c.logger)}, c.poolOpts...)...)
	runCtx, abortFn := context.WithCancel(context.WithoutCancel(ctx))

	state := types.NewRunState(s.plan.Total())
	state.Completed = s.plan.Succeeded
	state.Failed = s.plan.Failed

	failures := make(map[types.ErrorKind]int, len(s.plan.FailuresByKind))
	for k, n := range s.plan.FailuresByKind {
		failures[k] = n
	}

	return &loop{
		c:        c,
		s:        s,
		pool:     p,
		start:    start,
		runCtx:   runCtx,
		abortFn:  abortFn,
		results:  make(chan types.Result, p.Size()),
		queue:    s.plan.Queue,
		state:    state,
		status:   types.RunRunning,
		failures: failures,
	}
}

// run multiplexes dispatch, results, timers, and commands until the queue
// is drained or the run is stopped and every in-flight task has returned.
func (l *loop) run(ctx context.Context) {
	cfg := l.c.cfg
	flush := time.NewTicker(cfg.Checkpoint.FlushInterval)
	defer flush.Stop()
	tick := time.NewTicker(cfg.ProgressInterval)
	defer tick.Stop()

	ctxDone := ctx.Done()
	var next time.Time

	for {
		var wake <-chan time.Time
		for l.canDispatch() {
			if wait := time.Until(next); wait > 0 {
				wake = time.After(wait)
				break
			}
			l.dispatch()
			if cfg.DispatchInterval > 0 {
				next = time.Now().Add(cfg.DispatchInterval)
			}
		}
		if l.finished() {
			return
		}

		select {
		case r := <-l.results:
			l.handle(r)
		case <-wake:
		case <-flush.C:
			l.flush()
		case <-tick.C:
			if l.dirty {
				l.publish()
			}
		case cmd := <-l.c.cmds:
			l.command(cmd)
		case <-ctxDone:
			ctxDone = nil
			l.c.logger.Warn("context cancelled, aborting run")
			l.abort()
		}
	}
}

func (l *loop) canDispatch() bool {
	return l.status == types.RunRunning && !l.stopping && l.fatal == nil &&
		len(l.queue) > 0 && len(l.state.InFlight) < l.pool.Size()
}

func (l *loop) finished() bool {
	if len(l.state.InFlight) > 0 {
		return false
	}
	return len(l.queue) == 0 || l.stopping || l.fatal != nil
}

func (l *loop) dispatch() {
	rec := l.queue[0]
	l.queue = l.queue[1:]

	text, err := prompt.Render(l.s.tmpl.Text, rec)
	if err != nil {
		l.handle(types.Failure(rec.ID, types.KindTemplate, err.Error(), 0))
		return
	}

	// The loop never has more tasks in flight than the pool has slots, so
	// Submit does not block here.
	f, err := l.pool.Submit(l.runCtx, types.Task{Record: rec, Prompt: text})
	if err != nil {
		l.queue = append([]types.Record{rec}, l.queue...)
		l.stop()
		return
	}

	l.state.InFlight[rec.ID] = struct{}{}
	l.dispatched++
	l.dirty = true
	go func() { l.results <- f.Result() }()
}

// handle applies one terminal result: counters first, then the
// checkpoint append.
func (l *loop) handle(r types.Result) {
	delete(l.state.InFlight, r.RecordID)
	l.dirty = true

	if r.Abandoned || l.fatal != nil {
		l.c.logger.Debug("result discarded", slog.String("record_id", r.RecordID), slog.Bool("abandoned", r.Abandoned))
		return
	}

	if r.OK() {
		l.state.Completed++
	} else {
		l.state.Failed++
		l.failures[r.ErrorKind]++
	}
	l.c.report(r)

	entry := types.EntryFromResult(r, l.c.runID, l.c.now())
	if err := l.s.store.Append(entry); err != nil {
		l.fail(err)
	}
}

func (l *loop) flush() {
	if err := l.s.store.Flush(); err != nil {
		l.fail(err)
	}
}

// fail escalates to FatalError: dispatch stops and in-flight tasks are
// cancelled.
func (l *loop) fail(err error) {
	if l.fatal != nil {
		return
	}
	l.c.logger.Error("checkpoint failure, halting run", slog.String("error", err.Error()))
	l.fatal = err
	l.c.setState(types.RunFatalError)
	l.abortFn()
}

// stop ends dispatching. The run reports cancelled from here on, while
// in-flight tasks drain.
func (l *loop) stop() {
	l.stopping = true
	if l.fatal == nil {
		l.c.setState(types.RunCancelled)
	}
}

func (l *loop) abort() {
	l.stop()
	l.aborted = true
	l.abortFn()
}

func (l *loop) command(cmd command) {
	log := l.c.logger.With(slog.String("command", cmd.String()))
	switch cmd {
	case cmdPause:
		if l.status != types.RunRunning || l.stopping {
			return
		}
		l.status = types.RunPaused
		l.c.setState(types.RunPaused)
		l.flush()
		log.Info("run paused", slog.Int("in_flight", len(l.state.InFlight)))
	case cmdResume:
		if l.status != types.RunPaused || l.stopping {
			return
		}
		l.status = types.RunRunning
		l.c.setState(types.RunRunning)
		log.Info("run resumed")
	case cmdCancel:
		if l.c.cfg.CancelPolicy == types.CancelAbandon {
			log.Info("cancelling run, abandoning in-flight tasks", slog.Int("in_flight", len(l.state.InFlight)))
			l.abort()
			break
		}
		log.Info("cancelling run, waiting for in-flight tasks", slog.Int("in_flight", len(l.state.InFlight)))
		l.stop()
	case cmdAbort:
		log.Info("aborting run", slog.Int("in_flight", len(l.state.InFlight)))
		l.abort()
	}
	l.publish()
}

func (l *loop) snapshot() types.Progress {
	return types.Progress{
		Total:     l.state.Total,
		Completed: l.state.Completed,
		Failed:    l.state.Failed,
		InFlight:  len(l.state.InFlight),
		State:     l.c.State(),
		Elapsed:   l.c.now().Sub(l.start),
	}
}

func (l *loop) publish() {
	p := l.snapshot()
	telemetry.RunRecords.WithLabelValues("total").Set(float64(p.Total))
	telemetry.RunRecords.WithLabelValues("completed").Set(float64(p.Completed))
	telemetry.RunRecords.WithLabelValues("failed").Set(float64(p.Failed))
	l.c.publish(p)
	l.dirty = false
}

// close waits for the pool, flushes and closes the checkpoint, and builds
// the summary.
func (l *loop) close() (Summary, error) {
	l.abortFn()
	l.pool.Wait()

	if err := l.s.store.Close(); err != nil && l.fatal == nil {
		l.c.setState(types.RunFatalError)
		l.c.logger.Error("final checkpoint flush failed", slog.String("error", err.Error()))
		l.fatal = err
	}

	state := types.RunCompleted
	switch {
	case l.fatal != nil:
		state = types.RunFatalError
	case l.stopping:
		state = types.RunCancelled
	}

	done := l.state.Completed + l.state.Failed
	sum := Summary{
		RunID:          l.c.runID,
		State:          state,
		Records:        l.s.plan.Records,
		Total:          l.state.Total,
		Completed:      l.state.Completed,
		Failed:         l.state.Failed,
		Skipped:        l.s.plan.Skipped(),
		Dispatched:     l.dispatched,
		Pending:        l.s.plan.Records - done,
		Duration:       l.c.now().Sub(l.start),
		FailuresByKind: l.failures,
	}
	return sum, l.fatal
}
