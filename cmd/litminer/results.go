// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litminer/internal/checkpoint"
	"github.com/pdiddy/litminer/internal/records"
	"github.com/pdiddy/litminer/internal/resultsdb"
	"github.com/pdiddy/litminer/pkg/types"
)

const defaultResultsDB = "results/results.db"

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Index, summarize, and export extraction results",
	Long: `Results merges the input table with the checkpoint into a SQLite index
and exports the merged table. Every input record appears once, with its
extracted fields or its error; records not processed yet are "pending".
The index is rebuilt from scratch by "results index".`,
}

var resultsIndexCmd = &cobra.Command{
	Use:   "index [input]",
	Short: "Rebuild the results index from the input and checkpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd, false)
		if err != nil {
			return err
		}
		if cfg.Input.Path == "" {
			return fmt.Errorf("no input table: pass it as an argument or set --input")
		}

		loaded, err := records.Load(cfg.Input.Path, cfg.Input)
		if err != nil {
			return err
		}
		entries, report, err := checkpoint.Load(cfg.Checkpoint.Path)
		if err != nil {
			return err
		}

		db, err := openResultsDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		sum, err := db.Ingest(cmd.Context(), resultsdb.Input{Columns: loaded.Columns, Records: loaded.Records}, entries)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, warn := range loaded.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
		if report.Corrupt > 0 {
			fmt.Fprintf(w, "warning: checkpoint has %d corrupt lines\n", report.Corrupt)
		}
		fmt.Fprintf(w, "indexed %d records, %d results, %d fields into %s\n", sum.Records, sum.Results, sum.Fields, db.Path())
		if sum.Orphans > 0 {
			fmt.Fprintf(w, "%d checkpoint entries have no matching input record\n", sum.Orphans)
		}
		return nil
	},
}

var resultsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show counts per status, error kind, and field",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openResultsDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := db.Summary(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			return yaml.NewEncoder(w).Encode(st)
		}
		fmt.Fprintf(w, "records: %d\n", st.Records)
		fmt.Fprintf(w, "  succeeded: %d\n", st.Succeeded)
		fmt.Fprintf(w, "  failed:    %d\n", st.Failed)
		fmt.Fprintf(w, "  pending:   %d\n", st.Pending)
		printFailures(w, st.FailuresByKind)
		if len(st.Fields) > 0 {
			fmt.Fprintln(w, "fields:")
			for _, fc := range st.Fields {
				fmt.Fprintf(w, "  %-30s %d\n", fc.Key, fc.Count)
			}
		}
		return nil
	},
}

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the merged results table",
	Long: `Export writes the merged table: the record id, the input columns, the
extracted fields, then status, error kind, error, and attempts. The format
comes from --format or the --output extension (csv, xlsx, json, yaml).
Without --output the table is written to stdout.`,
	RunE: runResultsExport,
}

func init() {
	for _, c := range []*cobra.Command{resultsIndexCmd, resultsSummaryCmd, resultsExportCmd} {
		c.Flags().String("db", "", "results index (default \""+defaultResultsDB+"\")")
	}

	addInputFlags(resultsIndexCmd)
	addCheckpointFlags(resultsIndexCmd)

	resultsSummaryCmd.Flags().Bool("yaml", false, "print the summary as YAML")

	f := resultsExportCmd.Flags()
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.StringP("format", "f", "", "csv, xlsx, json, or yaml (default: from --output, else csv)")
	f.String("status", "", "only rows with this status: success, failure, or pending")
	f.String("kind", "", "only failures of this error kind")
	f.StringP("query", "q", "", "only rows whose source text contains this")
	f.String("has-field", "", "only rows with a value for this field")
	f.Int("limit", 0, "maximum rows (0 means all)")

	resultsCmd.AddCommand(resultsIndexCmd)
	resultsCmd.AddCommand(resultsSummaryCmd)
	resultsCmd.AddCommand(resultsExportCmd)
	rootCmd.AddCommand(resultsCmd)
}

func runResultsExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	formatName, _ := cmd.Flags().GetString("format")

	var format resultsdb.Format
	var err error
	switch {
	case formatName != "":
		format, err = resultsdb.ParseFormat(formatName)
	case output != "":
		format, err = resultsdb.FormatForPath(output)
	default:
		format = resultsdb.FormatCSV
	}
	if err != nil {
		return err
	}
	if format == resultsdb.FormatXLSX && output == "" {
		return fmt.Errorf("xlsx export needs --output")
	}

	var filter resultsdb.RowFilter
	status, _ := cmd.Flags().GetString("status")
	filter.Status = types.ResultStatus(status)
	kind, _ := cmd.Flags().GetString("kind")
	filter.Kind = types.ErrorKind(kind)
	filter.Query, _ = cmd.Flags().GetString("query")
	filter.HasField, _ = cmd.Flags().GetString("has-field")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	db, err := openResultsDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if output == "" {
		return db.Export(cmd.Context(), cmd.OutOrStdout(), format, filter)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	bw := bufio.NewWriter(out)
	if err := db.Export(cmd.Context(), bw, format, filter); err != nil {
		out.Close()
		return err
	}
	if err := flushClose(bw, out); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
	return nil
}

func flushClose(bw *bufio.Writer, c io.Closer) error {
	if err := bw.Flush(); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

// openResultsDB opens the index named by --db, the results.db config key,
// or the default path.
func openResultsDB(cmd *cobra.Command) (*resultsdb.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = viper.GetString("results.db")
	}
	if path == "" {
		path = defaultResultsDB
	}
	return resultsdb.Open(path)
}
