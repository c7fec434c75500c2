package cmd

import (
	"log/slog"
	"time"

	"github.com/TunnlTo/desktop-app/internal/daemon"
	"github.com/spf13/cobra"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the tunnlto daemon",
		Long: `Stop the tunnlto daemon, disabling the enabled tunnel first.

Any wiresock-client process started by the daemon is terminated with it.`,
		Aliases: []string{"shutdown", "quit", "exit"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STOP")
			if err != nil {
				slog.Warn("Daemon is not running")
				return
			}
			printMessages(response)

			if err := daemon.WaitForDaemonStop(5 * time.Second); err != nil {
				slog.Warn("Daemon did not shut down within timeout, but stop command was sent")
				return
			}
			slog.Debug("Daemon shutdown confirmed")
		},
	}
}
