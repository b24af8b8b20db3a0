package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker on its schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var onceAt string

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Fetch, normalize and diff prices a single time",
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now().UTC()
		if onceAt != "" {
			parsed, err := parseDate("at", onceAt)
			if err != nil {
				return err
			}
			at = parsed
		}

		result, err := getApp().Once(cmd.Context(), at)
		if err != nil {
			return err
		}
		if result.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "skipped: another run holds the lock")
			return nil
		}

		s := result.ChangeLog.Summary
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d models, %d dropped, +%d/-%d models, %d increases, %d decreases\n",
			result.ChangeLog.Date, len(result.Schema.Models), len(result.Report.Dropped),
			s.NewModels, s.RemovedModels, s.PriceIncreases, s.PriceDecreases)
		return nil
	},
}

func init() {
	onceCmd.Flags().StringVar(&onceAt, "at", "", "Run date (YYYY-MM-DD or RFC3339), defaults to now")
}
