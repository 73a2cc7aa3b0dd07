package cli

import (
	"github.com/spf13/cobra"

	"twelvecp/internal/app"
)

var (
	analyzeLookback int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the 12CP analysis and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			LookbackMonths: analyzeLookback,
		}
		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeLookback, "lookback", 0, "Look-back window in months (default from config)")
}
