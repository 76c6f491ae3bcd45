// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResultStatus tags a Result or CheckpointEntry as a success or a failure.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
)

// ErrorKind classifies why a record or a run failed.
type ErrorKind string

const (
	KindFormat       ErrorKind = "format"
	KindTemplate     ErrorKind = "template"
	KindTransientAPI ErrorKind = "transient_api"
	KindPermanentAPI ErrorKind = "permanent_api"
	KindParse        ErrorKind = "parse"
	KindPersistence  ErrorKind = "persistence"
	KindInternal     ErrorKind = "internal"
)

// Result is the terminal outcome of one Task. Exactly one of the success
// fields (Fields, RawResponse) or failure fields (ErrorKind, Message) is
// meaningful, selected by Status.
type Result struct {
	RecordID     string
	Status       ResultStatus
	Fields       map[string]any
	RawResponse  string
	ErrorKind    ErrorKind
	Message      string
	AttemptCount int

	// Abandoned marks a task whose context was cancelled before it reached
	// a terminal outcome. Abandoned results are never persisted.
	Abandoned bool
}

// Success builds a successful Result.
func Success(recordID string, fields map[string]any, raw string, attempts int) Result {
	return Result{
		RecordID:     recordID,
		Status:       StatusSuccess,
		Fields:       fields,
		RawResponse:  raw,
		AttemptCount: attempts,
	}
}

// Failure builds a failed Result.
func Failure(recordID string, kind ErrorKind, message string, attempts int) Result {
	return Result{
		RecordID:     recordID,
		Status:       StatusFailure,
		ErrorKind:    kind,
		Message:      message,
		AttemptCount: attempts,
	}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// CheckpointEntry is the persisted projection of a Result. The checkpoint
// log holds at most one entry per RecordID.
type CheckpointEntry struct {
	RecordID     string         `json:"record_id" yaml:"record_id"`
	Status       ResultStatus   `json:"status" yaml:"status"`
	Fields       map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	RawResponse  string         `json:"raw_response,omitempty" yaml:"raw_response,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message      string         `json:"message,omitempty" yaml:"message,omitempty"`
	AttemptCount int            `json:"attempt_count" yaml:"attempt_count"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
	RunID        string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// EntryFromResult projects a Result into a CheckpointEntry stamped with ts.
func EntryFromResult(r Result, runID string, ts time.Time) CheckpointEntry {
	return CheckpointEntry{
		RecordID:     r.RecordID,
		Status:       r.Status,
		Fields:       r.Fields,
		RawResponse:  r.RawResponse,
		ErrorKind:    r.ErrorKind,
		Message:      r.Message,
		AttemptCount: r.AttemptCount,
		Timestamp:    ts.UTC(),
		RunID:        runID,
	}
}
