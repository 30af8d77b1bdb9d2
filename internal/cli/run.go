package cli

import (
	"github.com/spf13/cobra"

	"penwatch/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the rate once and notify if warranted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var (
	watchCron      string
	watchImmediate bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Evaluate the rate on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			Cron:      watchCron,
			Immediate: watchImmediate,
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Six-field cron expression (defaults to scheduler.cron)")
	watchCmd.Flags().BoolVar(&watchImmediate, "immediate", false, "Run once at startup before the first scheduled tick")
}
