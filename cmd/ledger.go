package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/satscheck/ledger-cli/internal/job"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Merge the snapshot file into the location ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLedgerJob(cmd.Context(), "reconcile", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Reconcile(ctx)
		})
	},
}

var cooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: "Recompute verification dates, cooldowns and bounty bases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLedgerJob(cmd.Context(), "cooldown", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Cooldown(ctx)
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile and recompute cooldowns in one pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLedgerJob(cmd.Context(), "sync", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Sync(ctx)
		})
	},
}

var applySubmissions string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Append approved check submissions to the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLedgerJob(cmd.Context(), "apply", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Apply(ctx, applySubmissions)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <sheet.csv>",
	Short: "Add the venues of a curated sheet export as pending locations",
	Long:  "Reads a CSV export of the maintainers' venue sheet and adds every rated venue that is not yet in the location ledger, with a new id under region.id_prefix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLedgerJob(cmd.Context(), "import", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Import(ctx, args[0])
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade ledger files to the latest schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLedgerJob(cmd.Context(), "migrate", func(ctx context.Context, r *job.Runner) (job.Stats, error) {
			return r.Migrate(ctx)
		})
	},
}

func init() {
	applyCmd.Flags().StringVar(&applySubmissions, "submissions", "", "submissions JSON file (default: ledger.submissions_path)")

	rootCmd.AddCommand(reconcileCmd, cooldownCmd, syncCmd, applyCmd, importCmd, migrateCmd)
}

func runLedgerJob(ctx context.Context, name string, fn func(context.Context, *job.Runner) (job.Stats, error)) error {
	r, release, err := newRunner(ctx, "ledger")
	if err != nil {
		return err
	}
	defer release()

	stats, err := fn(ctx, r)
	if err != nil {
		return eris.Wrap(err, name)
	}
	formatStats(os.Stdout, stats)
	return nil
}

// formatStats writes counters sorted by name.
func formatStats(out io.Writer, stats job.Stats) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", k, stats[k])
	}
	_ = w.Flush()
}
