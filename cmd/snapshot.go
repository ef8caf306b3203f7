package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/satscheck/ledger-cli/internal/fetcher"
)

var snapshotForce bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Download the upstream feed into the snapshot file",
	Long:  "Fetches the configured feed, keeps the elements inside the region, and rewrites the snapshot CSV. The stored ETag skips unchanged feeds unless --force is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		r, release, err := newRunner(ctx, "snapshot")
		if err != nil {
			return err
		}
		defer release()

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Snapshot.UserAgent,
			Timeout:    time.Duration(cfg.Snapshot.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Snapshot.MaxRetries,
		})

		stats, err := r.Snapshot(ctx, f, snapshotForce)
		if err != nil {
			return eris.Wrap(err, "snapshot")
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotForce, "force", false, "ignore the stored ETag and always download")
	rootCmd.AddCommand(snapshotCmd)
}
