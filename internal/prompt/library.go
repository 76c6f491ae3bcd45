// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pdiddy/litminer/pkg/types"
)

const (
	templateExt = ".txt"
	schemaExt   = ".schema.json"

	// DefaultName is the display name of the built-in template.
	DefaultName = "Materials Properties"
	defaultStem = "materials_properties"
)

//go:embed default.txt
var defaultText string

// Template is one prompt template. Schema, when present, is the JSON
// Schema that the model's reply must satisfy.
type Template struct {
	Name   string
	Stem   string
	Path   string
	Text   string
	Schema []byte
}

// Default returns the built-in template.
func Default() Template {
	return Template{Name: DefaultName, Stem: defaultStem, Text: defaultText}
}

// Library is the set of templates found in a prompts directory.
type Library struct {
	byName   map[string]Template
	byStem   map[string]Template
	Warnings []string
}

// DisplayName turns a file stem into the name shown to users:
// "materials_properties" becomes "Materials Properties".
func DisplayName(stem string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(stem, "_", " "))
}

// LoadDir reads every *.txt template in dir. A template that fails
// validation is skipped with a warning. When dir is missing or holds no
// valid template the library contains only the built-in default.
func LoadDir(dir string) (*Library, error) {
	lib := &Library{
		byName: make(map[string]Template),
		byStem: make(map[string]Template),
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading prompts directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, templateExt) || strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			lib.Warnings = append(lib.Warnings, fmt.Sprintf("skipping %s: %v", name, err))
			continue
		}

		stem := strings.TrimSuffix(name, templateExt)
		t := Template{Name: DisplayName(stem), Stem: stem, Path: path, Text: string(data)}

		if err := Validate(t.Text); err != nil {
			lib.Warnings = append(lib.Warnings, fmt.Sprintf("skipping %s: %v", name, err))
			continue
		}

		schema, err := os.ReadFile(filepath.Join(dir, stem+schemaExt))
		switch {
		case err == nil:
			t.Schema = schema
		case !os.IsNotExist(err):
			lib.Warnings = append(lib.Warnings, fmt.Sprintf("reading schema for %s: %v", name, err))
		}

		lib.add(t)
	}

	if len(lib.byName) == 0 {
		lib.add(Default())
	}
	return lib, nil
}

func (l *Library) add(t Template) {
	l.byName[strings.ToLower(t.Name)] = t
	l.byStem[t.Stem] = t
}

// Names returns the display names of all templates, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.byName))
	for _, t := range l.byName {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Get looks a template up by display name (case-insensitive) or file stem.
func (l *Library) Get(name string) (Template, error) {
	if t, ok := l.byStem[name]; ok {
		return t, nil
	}
	if t, ok := l.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return Template{}, &types.TemplateError{Template: name, Reason: fmt.Sprintf("not found (available: %s)", strings.Join(l.Names(), ", "))}
}

// Resolve returns the named template, or the only template when name is
// empty and the library holds exactly one. An empty name with several
// templates selects the built-in default name if present.
func (l *Library) Resolve(name string) (Template, error) {
	if name != "" {
		return l.Get(name)
	}
	if len(l.byName) == 1 {
		for _, t := range l.byName {
			return t, nil
		}
	}
	if t, ok := l.byStem[defaultStem]; ok {
		return t, nil
	}
	return Template{}, &types.TemplateError{Reason: fmt.Sprintf("several templates available, choose one of: %s", strings.Join(l.Names(), ", "))}
}

// WriteDefault writes the built-in template into dir unless a file with
// the same name exists. It returns the path written, or "" if skipped.
func WriteDefault(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating prompts directory: %w", err)
	}
	path := filepath.Join(dir, defaultStem+templateExt)
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.WriteFile(path, []byte(defaultText), 0o644); err != nil {
		return "", fmt.Errorf("writing default template: %w", err)
	}
	return path, nil
}
