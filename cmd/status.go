package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/TunnlTo/desktop-app/internal/daemon"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the enabled tunnel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("No tunnel is enabled (daemon is not running).")
				return nil
			}

			var status daemon.StatusData
			if err := decodeData(response, &status); err != nil {
				return fmt.Errorf("failed to decode status: %w", err)
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Print(formatStatus(status))
			case "json":
				jsonBytes, _ := json.MarshalIndent(status, "", "  ")
				fmt.Println(string(jsonBytes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

// formatStatus renders a status payload for the terminal.
func formatStatus(status daemon.StatusData) string {
	var b strings.Builder

	name := status.TunnelName
	if name == "" {
		name = status.TunnelID
	}
	if name == "" {
		name = "-"
	}

	fmt.Fprintf(&b, "Tunnel:   %s\n", name)
	fmt.Fprintf(&b, "WireSock: %s", status.WiresockStatus)
	if status.PID > 0 {
		fmt.Fprintf(&b, " (PID: %d)", status.PID)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:   %s\n", status.TunnelStatus)

	if len(status.Logs) > 0 {
		b.WriteString("Logs:\n")
		for _, line := range status.Logs {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

func NewStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Stream tunnel state changes",
		Long: `Stream tunnel state changes as JSON, one wiresock_state event per line.

The current state is printed first. Press Ctrl+C to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.EnsureDaemonIsRunning(); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				os.Exit(0)
			}()

			return daemon.SendCommandStreaming("STATE", func(line string) error {
				var event daemon.StateEvent
				if err := json.Unmarshal([]byte(line), &event); err != nil {
					return fmt.Errorf("invalid state event: %w", err)
				}
				if event.Event != state.EventName {
					slog.Debug("Ignoring unknown event", "event", event.Event)
					return nil
				}
				fmt.Println(line)
				return nil
			})
		},
	}
}
