package cli

import (
	"github.com/spf13/cobra"

	"fx-rate-alerts/internal/app"
)

var (
	replayInput   string
	replayOutput  string
	replayPersist bool
	replayNotify  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Run the alerters over a JSON-lines observation file",
	Long: `Reads one observation per line ({"timestamp","currencyPair","rate"}) from
the given file, or stdin when the file is "-" or omitted, and writes one
alert per line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := replayInput
		if len(args) == 1 {
			input = args[0]
		}
		return getApp().Replay(cmd.Context(), app.ReplayOptions{
			Input:   input,
			Output:  replayOutput,
			Persist: replayPersist,
			Notify:  replayNotify,
		})
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "in", "-", "Observation file (- for stdin)")
	replayCmd.Flags().StringVar(&replayOutput, "out", "", "Alert file (defaults to output.path)")
	replayCmd.Flags().BoolVar(&replayPersist, "persist", false, "Store alerts in the configured database")
	replayCmd.Flags().BoolVar(&replayNotify, "notify", false, "Forward alerts to the configured channels")
}
