// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// FormatError reports an input table that cannot be read: unreadable
// structure, an empty file, or a missing required column. A run with a
// FormatError does not start.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format error in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("format error in %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// TemplateError reports a prompt template that cannot bind record content.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	if e.Template != "" {
		return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
	}
	return "template: " + e.Reason
}

// PersistenceError reports a checkpoint store that cannot write. It always
// escalates the run to FatalError.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ParseError reports a model reply that does not hold the expected
// structured block.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
