package cmd

import (
	"fmt"

	"github.com/TunnlTo/desktop-app/internal/installer"
	"github.com/spf13/cobra"
)

func NewInstallCommand() *cobra.Command {
	var showOutput bool

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install the WireSock client",
		Long: `Install the WireSock client from the configured MSI package.

The installer runs with a basic UI and may ask for elevation. Only
available on Windows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := sendToDaemon("INSTALL")
			if err != nil {
				return fmt.Errorf("failed to reach daemon: %w", err)
			}
			printErr := printMessages(response)

			if showOutput && response.Data != nil {
				var outcome installer.Outcome
				if err := decodeData(response, &outcome); err == nil {
					fmt.Println(outcome.OutputJSON())
				}
			}
			return printErr
		},
	}
	installCmd.Flags().BoolVar(&showOutput, "output", false, "print the captured installer output")

	return installCmd
}

func NewRunningCommand() *cobra.Command {
	var asJSON bool

	runningCmd := &cobra.Command{
		Use:   "running",
		Short: "Check whether wiresock-client is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonCommand("RUNNING", asJSON)
		},
	}
	runningCmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return runningCmd
}

func NewInstalledCommand() *cobra.Command {
	var asJSON bool

	installedCmd := &cobra.Command{
		Use:   "installed",
		Short: "Check whether the WireSock client is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonCommand("INSTALLED", asJSON)
		},
	}
	installedCmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return installedCmd
}

func NewServiceCommand() *cobra.Command {
	var asJSON bool

	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Check whether the WireSock service is registered",
		Long: `Check whether wiresock-client-service is registered with the Windows
service control manager. Other platforms report that the check is
unsupported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonCommand("SERVICE", asJSON)
		},
	}
	serviceCmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return serviceCmd
}
