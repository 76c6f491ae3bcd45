// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litminer engine:
// literature records, extraction tasks and results, checkpoint entries,
// run state, and configuration.
package types

// Record is one literature entry loaded from the input table. A Record is
// immutable once loaded; ID is unique within a run.
type Record struct {
	// ID is the value of the identifier column (or the row number when
	// index ids are enabled).
	ID string `json:"id" yaml:"id"`

	// SourceText is the text bound into the prompt, built from the title
	// and abstract columns.
	SourceText string `json:"source_text" yaml:"source_text"`

	// Metadata holds every other column of the input row, keyed by header.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Row is the 1-based data row number in the input file.
	Row int `json:"row" yaml:"row"`
}

// Task is one prompt-bound unit of work. The controller creates a Task for
// each Record lacking a checkpoint entry and drops it once a terminal
// Result is produced.
type Task struct {
	Record       Record
	Prompt       string
	AttemptCount int
}
