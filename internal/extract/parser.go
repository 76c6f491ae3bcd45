// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns a model's free-text reply into flat tabular fields.
// A reply is expected to carry one JSON object, possibly wrapped in a
// markdown code fence or surrounded by prose. Nested objects are flattened
// with "_" separators so each result fits in one output row.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pdiddy/litminer/pkg/types"
)

const (
	keySep  = "_"
	listSep = ", "
)

// Parser locates, decodes, validates, and flattens model replies. The zero
// value parses without schema validation.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser returns a Parser that validates replies against schema. A nil
// or empty schema disables validation.
func NewParser(schema []byte) (*Parser, error) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return &Parser{}, nil
	}
	s, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	return &Parser{schema: s}, nil
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// Parse extracts the fields from raw. Any failure is a *types.ParseError.
func (p *Parser) Parse(raw string) (map[string]any, error) {
	block, err := Locate(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &types.ParseError{Reason: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &types.ParseError{Reason: "trailing data after JSON object"}
	}
	if obj == nil {
		return nil, &types.ParseError{Reason: "reply is JSON null"}
	}

	if p != nil && p.schema != nil {
		if err := p.schema.Validate(any(obj)); err != nil {
			return nil, &types.ParseError{Reason: "reply does not match schema", Err: err}
		}
	}

	return Flatten(obj), nil
}

// Locate returns the outermost {...} block of raw after stripping a
// markdown code fence.
func Locate(raw string) (string, error) {
	s := StripCodeFence(raw)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", &types.ParseError{Reason: "no JSON object in reply"}
	}
	return s[start : end+1], nil
}

// StripCodeFence removes a surrounding ```json ... ``` fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Flatten collapses nested objects into one level with "_"-joined keys.
// Lists become ", "-joined strings.
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out map[string]any, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + keySep + k
		}
		switch val := v.(type) {
		case map[string]any:
			if len(val) == 0 {
				out[key] = ""
				continue
			}
			flattenInto(out, key, val)
		case []any:
			out[key] = joinList(val)
		default:
			out[key] = val
		}
	}
}

func joinList(items []any) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, FormatValue(it))
	}
	return strings.Join(parts, listSep)
}

// FormatValue renders a decoded JSON value as cell text. Null is empty.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
