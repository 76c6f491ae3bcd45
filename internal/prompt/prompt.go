// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt binds literature records into prompt templates and loads
// the template library from a prompts directory.
package prompt

import (
	"strings"

	"github.com/pdiddy/litminer/pkg/types"
)

// Marker is the placeholder a template must contain exactly once.
const Marker = "{content_to_analyze}"

// Validate checks that text contains the content marker exactly once.
func Validate(text string) error {
	switch n := strings.Count(text, Marker); {
	case n == 0:
		return &types.TemplateError{Reason: "missing placeholder " + Marker}
	case n > 1:
		return &types.TemplateError{Reason: "placeholder " + Marker + " appears more than once"}
	}
	return nil
}

// Render substitutes the record's source text for the marker. It is pure:
// the same template and record always produce the same prompt. Marker text
// inside the record is not expanded.
func Render(text string, rec types.Record) (string, error) {
	if err := Validate(text); err != nil {
		return "", err
	}
	i := strings.Index(text, Marker)
	var b strings.Builder
	b.Grow(len(text) - len(Marker) + len(rec.SourceText))
	b.WriteString(text[:i])
	b.WriteString(rec.SourceText)
	b.WriteString(text[i+len(Marker):])
	return b.String(), nil
}
