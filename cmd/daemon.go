package cmd

import (
	"github.com/TunnlTo/desktop-app/internal/daemon"
	"github.com/spf13/cobra"
)

func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the tunnlto daemon in the foreground",
		Long: `Run the tunnlto daemon in the foreground.

Other commands start the daemon automatically when it is not running.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			d := daemon.New()
			d.Run()
		},
	}
}
