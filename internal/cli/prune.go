package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneBefore    string
	pruneOlderThan time.Duration
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete persisted alerts older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		cutoff, err := resolveCutoff(pruneBefore, pruneOlderThan, time.Now())
		if err != nil {
			return err
		}
		return getApp().Prune(cmd.Context(), cutoff)
	},
}

func resolveCutoff(before string, olderThan time.Duration, now time.Time) (time.Time, error) {
	switch {
	case before != "" && olderThan > 0:
		return time.Time{}, fmt.Errorf("--before and --older-than are mutually exclusive")
	case before != "":
		cutoff, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --before value: %w", err)
		}
		return cutoff, nil
	case olderThan > 0:
		return now.Add(-olderThan), nil
	default:
		return time.Time{}, fmt.Errorf("one of --before or --older-than must be provided")
	}
}

func init() {
	pruneCmd.Flags().StringVar(&pruneBefore, "before", "", "Delete alerts stamped before this time (RFC3339)")
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Delete alerts older than this age, e.g. 720h")
}
