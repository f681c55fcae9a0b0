// Package cli wires the cobra command tree for the ups-guardian binary.
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweeney/ups-guardian/internal/config"
	"github.com/sweeney/ups-guardian/internal/daemon"
	"github.com/sweeney/ups-guardian/internal/logging"
	"github.com/sweeney/ups-guardian/internal/notify"
	"github.com/sweeney/ups-guardian/internal/nut"
)

// version is set at build time via -ldflags "-X .../cli.version=...".
var version = "dev"

var (
	configPath    string
	dryRunFlag    bool
	logLevel      string
	prettyLog     bool
	exitAfterDone bool
)

var rootCmd = &cobra.Command{
	Use:   "ups-guardian",
	Short: "UPS-triggered shutdown orchestrator",
	Long: `ups-guardian polls a UPS through Network UPS Tools (upsc), tracks its
power state, and orchestrates a graceful, staged shutdown of virtual
machines, containers, filesystems, and remote hosts when the battery
situation crosses a configured threshold.`,
	// Running the bare binary with no subcommand is equivalent to "run".
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

// Execute runs the command tree and returns any error encountered.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/ups-guardian/config.toml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "use human-readable console log output")
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "log every shutdown action instead of executing it (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&exitAfterDone, "exit-after-shutdown", false, "exit the process once the shutdown sequence completes, instead of waiting to be killed")

	rootCmd.AddCommand(runCmd, validateConfigCmd, testNotificationsCmd, versionCmd)
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, "./ups-guardian.toml")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring and shutdown-orchestration daemon (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if dryRunFlag {
			cfg.Behavior.DryRun = true
		}

		log := logging.New(logging.Options{Level: logLevel, Pretty: prettyLog})
		log.Info().
			Str("ups", cfg.UPS.Name).
			Bool("dry_run", cfg.Behavior.DryRun).
			Str("version", version).
			Msg("ups-guardian starting")

		poller := nut.NewUpscPoller("", cfg.UPS.Name, cfg.UPS.CheckInterval.Duration)
		defer poller.Close() //nolint:errcheck

		d := daemon.New(cfg, log, poller, notify.ShoutrrrSender{})
		d.ExitAfterShutdown = exitAfterDone

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer cancel()

		if err := d.Run(ctx); err != nil {
			return fmt.Errorf("daemon exited: %w", err)
		}
		log.Info().Msg("ups-guardian exiting")
		return nil
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration file, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println("configuration OK")
		fmt.Printf("  ups: %s (check every %s)\n", cfg.UPS.Name, cfg.UPS.CheckInterval.Duration)
		fmt.Printf("  low battery trigger: %.0f%%\n", cfg.Triggers.LowBatteryPercent)
		fmt.Printf("  critical runtime trigger: %s\n", cfg.Triggers.CriticalRuntime.Duration)
		fmt.Printf("  notification sinks: %d\n", len(cfg.Notifications.URLs))
		fmt.Printf("  remote servers: %d\n", len(cfg.Stages.RemoteServers))
		fmt.Printf("  dry run: %v\n", cfg.Behavior.DryRun)
		return nil
	},
}

var testNotificationsCmd = &cobra.Command{
	Use:   "test-notifications",
	Short: "Send a test notification through every configured sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Notifications.URLs) == 0 {
			return fmt.Errorf("no notification sinks configured under [notifications].urls")
		}
		sender := notify.ShoutrrrSender{}
		err = sender.Send(cmd.Context(), cfg.Notifications.Title, "ups-guardian test notification", cfg.Notifications.AvatarURL, cfg.Notifications.URLs)
		if err != nil {
			return fmt.Errorf("sending test notification: %w", err)
		}
		fmt.Println("test notification sent")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
