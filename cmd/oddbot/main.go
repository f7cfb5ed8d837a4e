package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/corvidaelabs/oddbot/internal/cmd/client"
	serverrun "github.com/corvidaelabs/oddbot/internal/cmd/server"
	cfgpkg "github.com/corvidaelabs/oddbot/internal/config"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
	logpkg "github.com/corvidaelabs/oddbot/pkg/log"
)

func main() {
	// Respect ODDBOT_LOG_LEVEL for CLI output; the server builds its own
	// logger from config.
	level := os.Getenv("ODDBOT_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := &cobra.Command{
		Use:   "oddbot",
		Short: "oddbot event log and squeak gateway",
		Long:  "oddbot stores squeak events in a durable log and pushes them to WebSocket clients. This CLI runs the server and administers streams.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the oddbot server (HTTP API and WebSocket gateway)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			create, _ := cmd.Flags().GetBool("create-stream")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg, CreateStream: create}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	addServerFlags(serverStartCmd)
	serverStartCmd.Flags().Bool("create-stream", false, "Create the event stream if it does not exist")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	configCmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	configPrintCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := cfgpkg.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	addServerFlags(configPrintCmd)
	configCmd.AddCommand(configPrintCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(clientcmd.NewStreamCommand(clientcmd.APIURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewSqueakCommand(clientcmd.APIURLFromEnv))

	if err := rootCmd.Execute(); err != nil {
		logger.Debug("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", os.Getenv("ODDBOT_CONFIG"), "Config file (YAML or JSON)")
	cmd.Flags().String("stream-name", "", "Event stream name (overrides EVENT_STREAM_NAME)")
	cmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	cmd.Flags().String("http", "", "HTTP listen address (default :3000)")
	cmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	cmd.Flags().Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms (default 5)")
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json (default text)")
}

// loadConfig loads the config file (or defaults) with env overlaid, then
// applies any flags set on cmd.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	return cfg, applyServerFlags(cmd, &cfg)
}

func applyServerFlags(cmd *cobra.Command, cfg *cfgpkg.Config) error {
	f := cmd.Flags()
	if f.Changed("stream-name") {
		cfg.Stream.Name, _ = f.GetString("stream-name")
	}
	if f.Changed("data-dir") {
		cfg.Storage.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("http") {
		cfg.HTTP.Addr, _ = f.GetString("http")
	}
	if f.Changed("fsync") {
		mode, _ := f.GetString("fsync")
		if _, err := pebblestore.ParseFsyncMode(mode); err != nil {
			return fmt.Errorf("invalid --fsync; use always|interval|never")
		}
		cfg.Storage.Fsync = mode
	}
	if f.Changed("fsync-interval-ms") {
		ms, _ := f.GetInt("fsync-interval-ms")
		cfg.Storage.FsyncInterval = time.Duration(ms) * time.Millisecond
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	return nil
}
