package cli

import (
	"github.com/spf13/cobra"

	"twelvecp/internal/app"
)

var (
	exportCSV      string
	exportPNG      string
	exportLookback int
	exportMax      int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export analysis results as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			CSVPath:        exportCSV,
			PNGPath:        exportPNG,
			LookbackMonths: exportLookback,
			MaxPoints:      exportMax,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "Path for the monthly comparison CSV")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "Path for the price chart PNG")
	exportCmd.Flags().IntVar(&exportLookback, "lookback", 0, "Look-back window in months (default from config)")
	exportCmd.Flags().IntVar(&exportMax, "max-points", 0, "Maximum chart data points (default from config)")
}
