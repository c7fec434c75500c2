package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/TunnlTo/desktop-app/internal/daemon"
	"github.com/spf13/cobra"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// filterCategories maps a -F category to the keywords that select it.
var filterCategories = map[string][]string{
	"client":    {"wiresock", "tunnel"},
	"menu":      {"menu"},
	"installer": {"install"},
	"daemon":    {"daemon", "config", "database"},
}

// logFilter decides which daemon log lines reach the terminal.
type logFilter struct {
	debug   bool
	filter  string
	noColor bool
}

// apply returns the line to print and whether to print it at all.
func (f logFilter) apply(line string) (string, bool) {
	if !f.debug && isDebugLog(line) {
		return "", false
	}
	if f.filter != "" && !matchesFilter(line, f.filter) {
		return "", false
	}
	if f.noColor {
		line = stripANSI(line)
	}
	return line, true
}

func NewLogsCommand() *cobra.Command {
	var lines int
	var f logFilter

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream daemon logs in real-time",
		Long: `Stream daemon logs in real-time.

Press Ctrl+C to exit. DEBUG lines are hidden unless --debug is given.

Filter categories:
  client     - wiresock-client output and lifecycle
  menu       - Status menu updates
  installer  - WireSock installer runs
  daemon     - Daemon start/stop, config reload

Any other filter value is matched as a keyword.

Examples:
  tunnlto logs               # Stream INFO and above
  tunnlto logs --debug       # Include DEBUG logs
  tunnlto logs -F client     # Only the supervised client
  tunnlto logs -L 50         # Show 50 history lines on connect

The stream resumes without history when the daemon restarts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := daemon.SendCommand("VERSION"); err != nil {
				return errors.New("daemon is not running, use 'tunnlto daemon' to start it")
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			request := fmt.Sprintf("LOGS %d", lines)
			for {
				streamErr := make(chan error, 1)
				go func() {
					streamErr <- daemon.SendCommandStreaming(request, func(line string) error {
						if out, ok := f.apply(line); ok {
							fmt.Fprintln(cmd.OutOrStdout(), out)
						}
						return nil
					})
				}()

				select {
				case <-interrupt:
					fmt.Fprintln(cmd.OutOrStdout(), "\nDisconnected from daemon logs.")
					return nil
				case <-streamErr:
				}

				fmt.Fprintln(cmd.OutOrStdout(), "Connection lost. Reconnecting...")
				if !waitForDaemon(10, 500*time.Millisecond) {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon not available. Exiting.")
					return nil
				}
				request = fmt.Sprintf("LOGS %d no_history", lines)
			}
		},
	}

	logsCmd.Flags().BoolVar(&f.debug, "debug", false, "Show DEBUG level logs")
	logsCmd.Flags().StringVarP(&f.filter, "filter", "F", "", "Filter logs by category or keyword (client, menu, installer, daemon)")
	logsCmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	logsCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return logsCmd
}

// waitForDaemon polls until the daemon answers or attempts run out.
func waitForDaemon(attempts int, interval time.Duration) bool {
	for range attempts {
		time.Sleep(interval)
		if _, err := daemon.SendCommand("VERSION"); err == nil {
			return true
		}
	}
	return false
}

// isDebugLog reports whether a tint formatted line has the DBG level.
func isDebugLog(line string) bool {
	for _, field := range strings.Fields(stripANSI(line)) {
		if field == "DBG" {
			return true
		}
		if field == "INF" || field == "WRN" || field == "ERR" {
			return false
		}
	}
	return false
}

func matchesFilter(line, filter string) bool {
	filter = strings.ToLower(filter)
	lower := strings.ToLower(stripANSI(line))

	keywords, ok := filterCategories[filter]
	if !ok {
		return strings.Contains(lower, filter)
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}
