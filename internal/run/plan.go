// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"fmt"

	"github.com/pdiddy/litminer/internal/checkpoint"
	"github.com/pdiddy/litminer/internal/records"
	"github.com/pdiddy/litminer/pkg/types"
)

// Plan is the resume set of a run computed from the input and checkpoint
// without calling the model.
type Plan struct {
	// Records is the number of records in the input.
	Records int

	// Succeeded and Failed count input records that already have an entry.
	Succeeded int
	Failed    int

	// FailuresByKind counts the checkpointed failures by error kind.
	FailuresByKind map[types.ErrorKind]int

	// Remaining counts input records without an entry, before the limit.
	Remaining int

	// Queue holds the records this run would dispatch, in input order.
	Queue []types.Record

	// Warnings collects input and checkpoint warnings.
	Warnings []string
}

// Skipped returns the number of records resumed from the checkpoint.
func (p Plan) Skipped() int { return p.Succeeded + p.Failed }

// Total returns the size of the run's scope: the records already
// checkpointed plus the records this run dispatches.
func (p Plan) Total() int { return p.Skipped() + len(p.Queue) }

// BuildPlan computes the resume set without running. It reads the
// checkpoint but never writes it.
func BuildPlan(cfg types.RunConfig) (Plan, error) {
	cfg.ApplyDefaults()

	loaded, err := records.Load(cfg.Input.Path, cfg.Input)
	if err != nil {
		return Plan{}, err
	}
	entries, report, err := checkpoint.Load(cfg.Checkpoint.Path)
	if err != nil {
		return Plan{}, err
	}

	p := newPlan(loaded.Records, entries, cfg.Limit)
	p.Warnings = append(p.Warnings, loaded.Warnings...)
	p.Warnings = append(p.Warnings, reportWarnings(report)...)
	return p, nil
}

// newPlan splits recs into resumed and queued records. limit caps the
// queue when positive.
func newPlan(recs []types.Record, entries map[string]types.CheckpointEntry, limit int) Plan {
	p := Plan{Records: len(recs), FailuresByKind: make(map[types.ErrorKind]int)}
	for _, rec := range recs {
		e, done := entries[rec.ID]
		switch {
		case !done:
			p.Remaining++
			if limit <= 0 || len(p.Queue) < limit {
				p.Queue = append(p.Queue, rec)
			}
		case e.Status == types.StatusSuccess:
			p.Succeeded++
		default:
			p.Failed++
			p.FailuresByKind[e.ErrorKind]++
		}
	}
	return p
}

func reportWarnings(r checkpoint.LoadReport) []string {
	var out []string
	if r.Corrupt > 0 {
		out = append(out, fmt.Sprintf("checkpoint: skipped %d corrupt lines", r.Corrupt))
	}
	if r.Uncommitted > 0 {
		out = append(out, fmt.Sprintf("checkpoint: ignored %d lines of an unfinished flush", r.Uncommitted))
	}
	if r.TruncatedTail {
		out = append(out, "checkpoint: ignored partial last line")
	}
	return out
}
