package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"llm-price-tracker/internal/app"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild missing changelogs from archived snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{DryRun: backfillDryRun}

		var err error
		if backfillFrom != "" {
			if opts.From, err = parseDate("from", backfillFrom); err != nil {
				return err
			}
		}
		if backfillTo != "" {
			if opts.To, err = parseDate("to", backfillTo); err != nil {
				return err
			}
		}
		if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
			return fmt.Errorf("--from must not be after --to")
		}

		res, err := getApp().Backfill(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "written: %d, skipped: %d\n", res.Written, res.Skipped)
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First snapshot date (inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last snapshot date (inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
