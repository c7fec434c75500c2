package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/TunnlTo/desktop-app/internal/daemon"
	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	var limit int
	var asJSON bool

	eventsCmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"history"},
		Short:   "Show recent tunnel, daemon and installer events",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := sendToDaemon(fmt.Sprintf("EVENTS %d", limit))
			if err != nil {
				return fmt.Errorf("failed to reach daemon: %w", err)
			}
			if response.HasError() {
				return printMessages(response)
			}

			var data daemon.EventsData
			if err := decodeData(response, &data); err != nil {
				return fmt.Errorf("failed to decode events: %w", err)
			}

			if asJSON {
				jsonBytes, _ := json.MarshalIndent(data, "", "  ")
				fmt.Println(string(jsonBytes))
				return nil
			}
			writeEvents(os.Stdout, data)
			return nil
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events per section")
	eventsCmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON")

	return eventsCmd
}

func writeEvents(w io.Writer, data daemon.EventsData) {
	const layout = "2006-01-02 15:04:05"

	fmt.Fprintln(w, "Tunnel events:")
	if len(data.TunnelEvents) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ev := range data.TunnelEvents {
		fmt.Fprintf(w, "  %s  %-16s %-15s %s\n", ev.Timestamp.Local().Format(layout), ev.TunnelID, ev.EventType, oneLine(ev.Details))
	}

	fmt.Fprintln(w, "Daemon events:")
	if len(data.DaemonEvents) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ev := range data.DaemonEvents {
		fmt.Fprintf(w, "  %s  %-15s %s\n", ev.Timestamp.Local().Format(layout), ev.EventType, oneLine(ev.Details))
	}

	if len(data.InstallerRuns) > 0 {
		fmt.Fprintln(w, "Installer runs:")
		for _, run := range data.InstallerRuns {
			fmt.Fprintf(w, "  %s  %-15s exit %d  %s\n", run.Timestamp.Local().Format(layout), run.Result, run.ExitCode, run.Package)
		}
	}

	if len(data.LastPerTunnel) > 0 {
		fmt.Fprintln(w, "Last event per tunnel:")
		for _, ev := range data.LastPerTunnel {
			fmt.Fprintf(w, "  %-16s %-15s %s ago\n", ev.TunnelID, ev.EventType, time.Since(ev.Timestamp).Round(time.Second))
		}
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
