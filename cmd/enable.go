package cmd

import (
	"github.com/spf13/cobra"
)

func NewEnableCommand() *cobra.Command {
	var asJSON bool

	enableCmd := &cobra.Command{
		Use:     "enable <tunnel-id>",
		Aliases: []string{"connect", "up"},
		Short:   "Enable a tunnel",
		Long: `Enable a tunnel by starting wiresock-client with its configuration.

Only one tunnel can be enabled at a time. The command returns once the
client is running; use "tunnlto status" or "tunnlto state" to follow it.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTunnelIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonCommand("ENABLE "+args[0], asJSON)
		},
	}
	enableCmd.Flags().BoolVar(&asJSON, "json", false, "print the resulting status as JSON")

	return enableCmd
}

func NewDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "disable",
		Aliases: []string{"disconnect", "down"},
		Short:   "Disable the enabled tunnel",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonCommand("DISABLE", false)
		},
	}
}
