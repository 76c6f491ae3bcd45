//go:build mage

// Package main contains Mage build targets for litminer developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/litminer/internal/prompt"
)

// projectDirs lists the working directories a run expects.
var projectDirs = []string{
	"data",
	"prompts",
	"checkpoints",
	"results",
}

// Init creates the project directories and writes the built-in prompt
// template into prompts/.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	path, err := prompt.WriteDefault("prompts")
	if err != nil {
		return err
	}
	if path != "" {
		fmt.Println("  ", path)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "litminer"
	cmdPkg  = "./cmd/litminer"
)

// Build compiles the CLI binary into bin/, stamping the version from
// LITMINER_VERSION when it is set.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	args := []string{"build", "-o", out}
	if v := os.Getenv("LITMINER_VERSION"); v != "" {
		args = append(args, "-ldflags", "-X main.version="+v)
	}
	args = append(args, cmdPkg)
	if err := sh.RunV("go", args...); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check runs go vet and the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Clean removes the binary directory.
func Clean() error {
	return sh.Rm(binDir)
}

// Results groups targets that work on extraction output.
type Results mg.Namespace

// Index rebuilds results/results.db from INPUT and the default checkpoint.
func (Results) Index() error {
	mg.Deps(Build)
	input := os.Getenv("INPUT")
	if input == "" {
		return fmt.Errorf("set INPUT to the input table")
	}
	return sh.RunV(filepath.Join(binDir, binName), "results", "index", input)
}

// Export writes results/results.xlsx from the index.
func (Results) Export() error {
	mg.Deps(Build, Results.Index)
	return sh.RunV(filepath.Join(binDir, binName), "results", "export", "-o", "results/results.xlsx")
}

// Stats prints project metrics: Go production/test LOC and prompt template count.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	templates, _ := filepath.Glob(filepath.Join("prompts", "*.txt"))

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Prompt templates:                %d\n", len(templates))
	return nil
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
// Directories starting with "_" or "." are skipped, as the go tool does.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				total++
			}
		}
		return nil
	})
	return total, err
}
