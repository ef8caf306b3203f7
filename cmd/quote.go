package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/satscheck/ledger-cli/internal/job"
	"github.com/satscheck/ledger-cli/internal/model"
)

var (
	quoteLocation  string
	quoteSubmitter string
	quoteCritical  bool
	quoteNew       bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a check without writing anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if quoteLocation == "" && !quoteNew {
			return eris.New("quote: --location or --new is required")
		}
		if err := cfg.Validate("ledger"); err != nil {
			return err
		}

		req := job.QuoteRequest{
			LocationID:  quoteLocation,
			SubmitterID: quoteSubmitter,
			CheckType:   model.CheckTypeBase,
			NewLocation: quoteNew,
		}
		if quoteCritical {
			req.CheckType = model.CheckTypeCriticalChange
		}

		q, err := job.NewRunner(cfg, nil).Quote(cmd.Context(), req)
		if err != nil {
			return eris.Wrap(err, "quote")
		}
		formatQuote(os.Stdout, q)
		return nil
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteLocation, "location", "", "location id to price")
	quoteCmd.Flags().StringVar(&quoteSubmitter, "submitter", "", "submitter id for the activity multiplier")
	quoteCmd.Flags().BoolVar(&quoteCritical, "critical", false, "price as a critical change report")
	quoteCmd.Flags().BoolVar(&quoteNew, "new", false, "price as a new location")
	rootCmd.AddCommand(quoteCmd)
}

func formatQuote(out io.Writer, q job.LocationQuote) {
	last := "never"
	if !q.LastVerified.IsZero() {
		last = q.LastVerified.String()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if q.Name != "" {
		_, _ = fmt.Fprintf(w, "Location:\t%s\n", q.Name)
	}
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", q.Kind)
	_, _ = fmt.Fprintf(w, "Last verified:\t%s\n", last)
	if q.MonthsSince >= 0 {
		_, _ = fmt.Fprintf(w, "Months since:\t%d\n", q.MonthsSince)
	}
	_, _ = fmt.Fprintf(w, "Recent checks:\t%d\n", q.RecentChecks)
	_, _ = fmt.Fprintf(w, "Base:\t%d sats\n", q.Base)
	_, _ = fmt.Fprintf(w, "Multiplier:\t%s\n", q.Factor)
	_, _ = fmt.Fprintf(w, "Final:\t%d sats\n", q.Final)
	if q.OSMURL != "" {
		_, _ = fmt.Fprintf(w, "OSM:\t%s\n", q.OSMURL)
	}
	if q.VerifyURL != "" {
		_, _ = fmt.Fprintf(w, "BTCMap verify:\t%s\n", q.VerifyURL)
	}
	_ = w.Flush()
}
