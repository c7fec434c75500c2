package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:           "tunnlto",
		Short:         "TunnlTo - WireSock tunnel supervisor",
		Long:          `TunnlTo - supervises wiresock-client tunnels and keeps the tray menu in step with them`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfigFromDir(configPath)
			if err != nil {
				return err
			}
			cfg.Verbose = max(cfg.Verbose, verbose)
			core.Config = cfg

			level := slog.LevelInfo
			if cfg.Verbose > 0 {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: time.Kitchen,
			})))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", core.DefaultConfigPath(), "config path")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewEnableCommand(),
		NewDisableCommand(),
		NewStatusCommand(),
		NewStateCommand(),
		NewLogsCommand(),
		NewTunnelCommand(),
		NewMenuCommand(),
		NewInstallCommand(),
		NewRunningCommand(),
		NewInstalledCommand(),
		NewServiceCommand(),
		NewEventsCommand(),
		NewStopCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
