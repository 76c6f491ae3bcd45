// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider API keys from a directory of plain-text
// files, one key per file. The key name is the lower-cased file name
// without a .txt or .key suffix, so "OpenAI-API-Key.txt" and
// "openai-api-key" both name the openai key.
//
// Provider key files: openai-api-key, deepseek-api-key, moonshot-api-key,
// intern-ai-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/litminer/internal/logger"
)

// Load returns the non-empty keys found in dir. A missing directory yields
// an empty map. Files that cannot be read are logged and skipped; files
// readable by group or others are loaded with a warning.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	log := logger.Default()
	keys := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		value, err := readKey(filepath.Join(dir, entry.Name()), entry)
		if err != nil {
			log.Warn("skipping secret", slog.String("file", entry.Name()), slog.String("error", err.Error()))
			continue
		}
		if value == "" {
			continue
		}

		name := KeyName(entry.Name())
		if _, dup := keys[name]; dup {
			log.Warn("duplicate secret, keeping the first", slog.String("key", name), slog.String("file", entry.Name()))
			continue
		}
		keys[name] = value
	}
	return keys, nil
}

// KeyName maps a secrets file name to its key name.
func KeyName(file string) string {
	name := strings.ToLower(file)
	for _, ext := range []string{".txt", ".key"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func readKey(path string, entry fs.DirEntry) (string, error) {
	if info, err := entry.Info(); err == nil && info.Mode().Perm()&0o077 != 0 {
		logger.Default().Warn("secret file is readable by other users",
			slog.String("file", entry.Name()),
			slog.String("mode", info.Mode().Perm().String()))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Mask hides all but the last four characters of a key for display.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 4) + value[len(value)-4:]
}
