// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pool runs extraction tasks against an LLM client with bounded
// concurrency. Each task is retried on transient failures with jittered
// exponential backoff and always ends in exactly one types.Result, even
// when the client panics.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/telemetry"
	"github.com/pdiddy/litminer/pkg/types"
)

// Parser turns raw reply text into flat fields.
type Parser interface {
	Parse(raw string) (map[string]any, error)
}

// Pool executes tasks with at most N in flight.
type Pool struct {
	client llm.Client
	parser Parser
	retry  types.RetryConfig
	logger *slog.Logger
	jitter func() float64

	sem         chan struct{}
	wg          sync.WaitGroup
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pool) { p.logger = l } }

// WithJitter replaces the random source used for backoff jitter. f must
// return values in [0, 1).
func WithJitter(f func() float64) Option { return func(p *Pool) { p.jitter = f } }

// New creates a pool. cfg.Concurrency below 1 is treated as 1.
func New(client llm.Client, parser Parser, cfg types.PoolConfig, opts ...Option) *Pool {
	n := cfg.Concurrency
	if n < 1 {
		n = 1
	}
	p := &Pool{
		client: client,
		parser: parser,
		retry:  cfg.Retry,
		logger: logger.Default(),
		jitter: rand.Float64,
		sem:    make(chan struct{}, n),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return cap(p.sem) }

// InFlight returns the number of tasks executing now.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// MaxInFlight returns the highest InFlight value observed.
func (p *Pool) MaxInFlight() int { return int(p.maxInFlight.Load()) }

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() { p.wg.Wait() }

// Future is the pending outcome of one submitted task.
type Future struct {
	RecordID string

	done   chan struct{}
	result types.Result
}

// Done is closed when the result is ready.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the task finishes and returns its outcome.
func (f *Future) Result() types.Result {
	<-f.done
	return f.result
}

// Submit starts task once a slot is free. It blocks while N tasks are in
// flight and returns ctx.Err() if ctx ends first. Cancelling ctx after
// Submit returns abandons the task.
func (p *Pool) Submit(ctx context.Context, task types.Task) (*Future, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f := &Future{RecordID: task.Record.ID, done: make(chan struct{})}
	p.wg.Add(1)
	p.track(1)
	go p.run(ctx, task, f)
	return f, nil
}

func (p *Pool) track(delta int64) {
	n := p.inFlight.Add(delta)
	telemetry.PoolInFlight.Add(float64(delta))
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			return
		}
	}
}

// run executes one task and publishes its result. A panic in the client
// or parser is recovered into a KindInternal failure.
func (p *Pool) run(ctx context.Context, task types.Task, f *Future) {
	start := time.Now()
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic recovered",
				slog.String("record_id", task.Record.ID),
				slog.Any("panic", r),
			)
			f.result = types.Failure(task.Record.ID, types.KindInternal, fmt.Sprintf("panic: %v", r), attempts)
		}

		telemetry.PoolTaskDurationSeconds.Observe(time.Since(start).Seconds())
		telemetry.PoolTasks.WithLabelValues(outcome(f.result)).Inc()

		p.track(-1)
		<-p.sem
		close(f.done)
		p.wg.Done()
	}()

	f.result = p.execute(ctx, task, &attempts)
}

func outcome(r types.Result) string {
	switch {
	case r.Abandoned:
		return "abandoned"
	case r.OK():
		return "success"
	default:
		return string(r.ErrorKind)
	}
}

// execute runs the attempt loop. attempts is updated before each call so
// a recovered panic reports the attempt it happened in.
func (p *Pool) execute(ctx context.Context, task types.Task, attempts *int) types.Result {
	id := task.Record.ID
	log := p.logger.With(slog.String("record_id", id))
	maxAttempts := max(p.retry.MaxRetries+1, 1)

	var (
		lastErr  error
		lastKind types.ErrorKind
		lastRaw  string
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt-1, lastErr)
			telemetry.PoolRetries.WithLabelValues(string(lastKind)).Inc()
			log.Debug("attempt failed, retrying",
				slog.Int("attempt", attempt-1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			if !sleep(ctx, delay) {
				return abandoned(id, attempt-1)
			}
		}
		if ctx.Err() != nil {
			return abandoned(id, attempt-1)
		}

		*attempts = attempt
		resp, err := p.client.Analyze(ctx, task.Prompt)
		if err != nil {
			if ctx.Err() != nil {
				return abandoned(id, attempt)
			}
			if !llm.Retryable(err) {
				log.Warn("permanent failure", slog.String("error", err.Error()), slog.Int("attempts", attempt))
				return types.Failure(id, types.KindPermanentAPI, err.Error(), attempt)
			}
			lastErr, lastKind, lastRaw = err, types.KindTransientAPI, ""
			continue
		}

		telemetry.LLMTokens.WithLabelValues(p.client.Name(), "input").Add(float64(resp.InputTokens))
		telemetry.LLMTokens.WithLabelValues(p.client.Name(), "output").Add(float64(resp.OutputTokens))

		fields, err := p.parser.Parse(resp.Text)
		if err != nil {
			lastErr, lastKind, lastRaw = err, types.KindParse, resp.Text
			continue
		}

		return types.Success(id, fields, resp.Text, attempt)
	}

	log.Warn("retries exhausted",
		slog.Int("attempts", maxAttempts),
		slog.String("kind", string(lastKind)),
		slog.String("error", lastErr.Error()),
	)
	r := types.Failure(id, lastKind, lastErr.Error(), maxAttempts)
	r.RawResponse = lastRaw
	return r
}

// backoff returns the wait before retry n (1-based): BaseDelay*2^(n-1)
// capped at MaxDelay, then drawn uniformly from [d/2, d]. A longer
// server-suggested Retry-After wins, up to MaxDelay.
func (p *Pool) backoff(n int, lastErr error) time.Duration {
	d := p.retry.BaseDelay
	for i := 1; i < n && d < p.retry.MaxDelay; i++ {
		d *= 2
	}
	if p.retry.MaxDelay > 0 && d > p.retry.MaxDelay {
		d = p.retry.MaxDelay
	}

	half := d / 2
	d = half + time.Duration(p.jitter()*float64(d-half))

	if apiErr, ok := asAPIError(lastErr); ok && apiErr.RetryAfter > d {
		d = apiErr.RetryAfter
		if p.retry.MaxDelay > 0 && d > p.retry.MaxDelay {
			d = p.retry.MaxDelay
		}
	}
	return d
}

func abandoned(id string, attempts int) types.Result {
	r := types.Failure(id, types.KindTransientAPI, "cancelled", attempts)
	r.Abandoned = true
	return r
}

// sleep waits d or until ctx ends. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func asAPIError(err error) (*llm.APIError, bool) {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
