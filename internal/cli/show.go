package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
)

var (
	showLimit int
	showPair  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently persisted alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Pair:  showPair,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of alerts to display")
	showCmd.Flags().StringVar(&showPair, "pair", "", "Only show alerts for this currency pair")
}
