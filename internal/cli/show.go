package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"llm-price-tracker/internal/app"
)

var (
	showDate  string
	showLimit int

	diffFrom  string
	diffTo    string
	diffLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest changelog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.ShowOptions{
			Date:  showDate,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two archived snapshots without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if diffFrom == "" || diffTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}
		return getApp().Diff(cmd.Context(), diffFrom, diffTo, diffLimit)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDate, "date", "", "Changelog date (YYYY-MM-DD), defaults to latest")
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "Number of records to display (0 for all)")

	diffCmd.Flags().StringVar(&diffFrom, "from", "", "Older snapshot date (YYYY-MM-DD)")
	diffCmd.Flags().StringVar(&diffTo, "to", "", "Newer snapshot date (YYYY-MM-DD)")
	diffCmd.Flags().IntVar(&diffLimit, "limit", 0, "Number of records to display (0 for all)")
}
