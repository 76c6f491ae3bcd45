// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litminer/internal/extract"
	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/pool"
	"github.com/pdiddy/litminer/internal/prompt"
	"github.com/pdiddy/litminer/internal/records"
	"github.com/pdiddy/litminer/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the prompt template against a single title and abstract",
	Long: `Analyze sends one title and abstract through the selected template and
prints the extracted fields. Use it to try a template before a full run.
With --text "-" the source text is read from standard input.`,
	RunE: runAnalyze,
}

func init() {
	addProviderFlags(analyzeCmd)
	addPromptFlags(analyzeCmd)

	f := analyzeCmd.Flags()
	f.String("title", "", "article title")
	f.String("abstract", "", "article abstract")
	f.String("text", "", "raw source text instead of title and abstract (\"-\" for stdin)")
	f.String("format", "yaml", "output format: yaml or json")
	f.Bool("raw", false, "also print the raw model reply")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, false)
	if err != nil {
		return err
	}

	source, err := analyzeSource(cmd)
	if err != nil {
		return err
	}

	lib, err := prompt.LoadDir(cfg.Prompt.Dir)
	if err != nil {
		return err
	}
	tmpl, err := lib.Resolve(cfg.Prompt.Template)
	if err != nil {
		return err
	}
	parser, err := extract.NewParser(tmpl.Schema)
	if err != nil {
		return &types.TemplateError{Template: tmpl.Name, Reason: "invalid output schema: " + err.Error()}
	}

	rec := types.Record{ID: "analyze", SourceText: source}
	text, err := prompt.Render(tmpl.Text, rec)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(cfg.Provider)
	if err != nil {
		return err
	}

	cfg.Pool.Concurrency = 1
	p := pool.New(client, parser, cfg.Pool, pool.WithLogger(logger.Default()))
	fut, err := p.Submit(cmd.Context(), types.Task{Record: rec, Prompt: text})
	if err != nil {
		return err
	}
	res := fut.Result()

	w := cmd.OutOrStdout()
	if raw, _ := cmd.Flags().GetBool("raw"); raw && res.RawResponse != "" {
		fmt.Fprintf(w, "--- raw reply ---\n%s\n--- fields ---\n", res.RawResponse)
	}
	if !res.OK() {
		return fmt.Errorf("%s after %d attempt(s): %s", res.ErrorKind, res.AttemptCount, res.Message)
	}

	format, _ := cmd.Flags().GetString("format")
	return writeFields(w, format, res.Fields)
}

func analyzeSource(cmd *cobra.Command) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	title, _ := cmd.Flags().GetString("title")
	abstract, _ := cmd.Flags().GetString("abstract")
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("provide --title (and optionally --abstract) or --text")
	}
	return records.SourceText(strings.TrimSpace(title), strings.TrimSpace(abstract)), nil
}

func writeFields(w io.Writer, format string, fields map[string]any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(fields); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q: use yaml or json", format)
}
