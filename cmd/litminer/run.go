// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litminer/internal/checkpoint"
	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/run"
	"github.com/pdiddy/litminer/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Extract structured fields from every record of an input table",
	Long: `Run loads the input table, skips records that already have a checkpoint
entry, and sends the rest through the prompt template to the LLM provider
with bounded concurrency. Each record ends in exactly one checkpoint entry,
either the extracted fields or the error that stopped it.

Press Ctrl-C once to stop dispatching and wait for in-flight requests, and
a second time to abandon them. Running the same command again resumes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addInputFlags(runCmd)
	addProviderFlags(runCmd)
	addPromptFlags(runCmd)
	addCheckpointFlags(runCmd)

	f := runCmd.Flags()
	f.IntP("concurrency", "n", 0, "maximum simultaneous requests (default 10)")
	f.Int("max-retries", 0, "retries after the first attempt (default 3)")
	f.Duration("base-delay", 0, "first retry backoff (default 1s)")
	f.Duration("max-delay", 0, "backoff cap (default 30s)")
	f.Duration("flush-interval", 0, "checkpoint sync interval (default 30s)")
	f.Int("save-every", 0, "flush after this many results (default 100)")
	f.Int("limit", 0, "process at most this many new records (0 = all)")
	f.Duration("dispatch-interval", 0, "delay between request dispatches")
	f.Duration("progress-interval", 0, "progress refresh interval (default 500ms)")
	f.String("cancel-policy", "", "on Ctrl-C: graceful (wait for in-flight) or abandon")
	f.Bool("dry-run", false, "show what would be processed and exit")
	f.Bool("fresh", false, "clear the checkpoint before running")
	f.BoolP("verbose", "v", false, "print one line per finished record")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, true)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		plan, err := run.BuildPlan(cfg)
		if err != nil {
			return err
		}
		printPlan(cmd.OutOrStdout(), cfg, plan)
		return nil
	}

	if fresh, _ := cmd.Flags().GetBool("fresh"); fresh {
		rep, err := checkpoint.Clear(cfg.Checkpoint.Path, checkpoint.Filter{All: true})
		if err != nil {
			return err
		}
		logger.Default().Info("checkpoint cleared", slog.String("path", cfg.Checkpoint.Path), slog.Int("removed", rep.Removed))
	}

	client, err := llm.NewClient(cfg.Provider)
	if err != nil {
		return err
	}

	opts := []run.Option{run.WithLogger(logger.Default())}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, run.WithOutput(cmd.OutOrStdout()))
	}
	ctrl := run.NewController(cfg, client, opts...)

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()
	go handleInterrupts(ctx, ctrl, cmd.ErrOrStderr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		renderProgress(cmd.ErrOrStderr(), ctrl.Progress())
	}()

	sum, runErr := ctrl.Run(ctx)
	<-done

	printSummary(cmd.OutOrStdout(), cfg, sum)
	return runErr
}

// handleInterrupts turns the first SIGINT or SIGTERM into a graceful
// cancel and the second into an abort.
func handleInterrupts(ctx context.Context, ctrl *run.Controller, w io.Writer) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			n++
			if n == 1 {
				fmt.Fprintln(w, "\ncancelling: waiting for in-flight requests (Ctrl-C again to abandon them)")
				ctrl.Cancel()
				continue
			}
			fmt.Fprintln(w, "\naborting: in-flight requests are abandoned and will be retried next run")
			ctrl.Abort()
			return
		}
	}
}

// renderProgress prints one status line per snapshot until the channel
// closes.
func renderProgress(w io.Writer, progress <-chan types.Progress) {
	for p := range progress {
		pct := 100.0
		if p.Total > 0 {
			pct = float64(p.Done()) * 100 / float64(p.Total)
		}
		fmt.Fprintf(w, "\r%-10s %d/%d (%.1f%%)  ok: %d  failed: %d  in flight: %d  %s   ",
			p.State, p.Done(), p.Total, pct, p.Completed, p.Failed, p.InFlight, p.Elapsed.Truncate(time.Second))
	}
	fmt.Fprintln(w)
}

func printPlan(w io.Writer, cfg types.RunConfig, plan run.Plan) {
	for _, warn := range plan.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	fmt.Fprintf(w, "input:      %s (%d records)\n", cfg.Input.Path, plan.Records)
	fmt.Fprintf(w, "checkpoint: %s (%d succeeded, %d failed)\n", cfg.Checkpoint.Path, plan.Succeeded, plan.Failed)
	fmt.Fprintf(w, "remaining:  %d\n", plan.Remaining)
	fmt.Fprintf(w, "this run:   %d", len(plan.Queue))
	if cfg.Limit > 0 {
		fmt.Fprintf(w, " (limit %d)", cfg.Limit)
	}
	fmt.Fprintln(w)
	printFailures(w, plan.FailuresByKind)
}

func printSummary(w io.Writer, cfg types.RunConfig, sum run.Summary) {
	fmt.Fprintf(w, "\nrun %s %s in %s\n", sum.RunID, sum.State, sum.Duration.Truncate(time.Millisecond))
	fmt.Fprintf(w, "succeeded: %d, failed: %d, resumed: %d, dispatched: %d, pending: %d\n",
		sum.Completed, sum.Failed, sum.Skipped, sum.Dispatched, sum.Pending)
	printFailures(w, sum.FailuresByKind)
	if sum.State != types.RunFatalError {
		fmt.Fprintf(w, "checkpoint: %s\n", cfg.Checkpoint.Path)
	}
}

func printFailures(w io.Writer, byKind map[types.ErrorKind]int) {
	if len(byKind) == 0 {
		return
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-14s %d\n", k, byKind[types.ErrorKind(k)])
	}
}
