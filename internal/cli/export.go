package cli

import (
	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
)

var (
	exportInput     string
	exportPair      string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Replay observations and export rates with alert markers as CSV and/or PNG",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Input:     exportInput,
			Pair:      exportPair,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		if len(args) == 1 {
			opts.Input = args[0]
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportInput, "in", "-", "Observation file (- for stdin)")
	exportCmd.Flags().StringVar(&exportPair, "pair", "", "Only export this currency pair")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart (one per pair when several)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points per pair (defaults to config)")
}
