package cmd

import (
	"fmt"
	"strings"

	"github.com/TunnlTo/desktop-app/internal/menu"
	"github.com/spf13/cobra"
)

func NewMenuCommand() *cobra.Command {
	menuCmd := &cobra.Command{
		Use:   "menu",
		Short: "Show or change the status menu",
		Long: `Show or change the status menu.

Without a subcommand the current menu is printed. Tunnels appear in the
"Connect" submenu; "Minimize to Tray" and "Exit" are always last.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := sendToDaemon("MENU")
			if err != nil {
				return fmt.Errorf("failed to reach daemon: %w", err)
			}
			var m menu.Menu
			if err := decodeData(response, &m); err != nil {
				return fmt.Errorf("failed to decode menu: %w", err)
			}
			fmt.Print(menu.Text(m))
			return nil
		},
	}

	menuCmd.AddCommand(
		&cobra.Command{
			Use:   "add <id> <label...>",
			Short: "Add or relabel a top-level item",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand(fmt.Sprintf("MENU_ADD %s %s", args[0], strings.Join(args[1:], " ")), false)
			},
		},
		&cobra.Command{
			Use:   "add-sub <submenu> <id> <label...>",
			Short: "Add or relabel an item inside a submenu",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand(fmt.Sprintf("MENU_ADD_SUB %s %s %s", args[0], args[1], strings.Join(args[2:], " ")), false)
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove a top-level item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand("MENU_REMOVE "+args[0], false)
			},
		},
		&cobra.Command{
			Use:   "remove-sub <submenu> <id>",
			Short: "Remove an item from a submenu",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand(fmt.Sprintf("MENU_REMOVE_SUB %s %s", args[0], args[1]), false)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Rebuild the Connect submenu from the tunnel list",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand("MENU_SYNC", false)
			},
		},
		&cobra.Command{
			Use:   "click <id>",
			Short: "Activate a menu item",
			Long: `Activate a menu item as if it was clicked in the tray.

Clicking a tunnel in the Connect submenu enables it, "disconnect"
disables it and "exit" stops the daemon.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDaemonCommand("CLICK "+args[0], false)
			},
		},
	)

	return menuCmd
}
