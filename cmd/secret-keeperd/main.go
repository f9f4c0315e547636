// Command secret-keeperd is the daemon entrypoint: it unlocks a vault,
// binds its Unix-domain socket, and serves exec/list/status/shutdown
// requests until stopped.
//
// Grounded in the teacher's cmd/warren/main.go cobra root command and its
// signal.Notify-driven graceful shutdown, generalized from Warren's
// cluster/manager/worker subcommands to this daemon's much smaller
// surface (start, status, stop).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CourageToGroww/secret-keeper/internal/config"
	"github.com/CourageToGroww/secret-keeper/internal/daemon"
	"github.com/CourageToGroww/secret-keeper/internal/dlog"
	"github.com/CourageToGroww/secret-keeper/internal/keysource"
	"github.com/CourageToGroww/secret-keeper/internal/metrics"
	"github.com/CourageToGroww/secret-keeper/internal/rotation"
	"github.com/CourageToGroww/secret-keeper/internal/rotation/providers"
	"github.com/CourageToGroww/secret-keeper/internal/vault"
	"github.com/CourageToGroww/secret-keeper/pkg/daemonclient"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "secret-keeperd",
	Short:   "secret-keeper daemon: mediates command execution against a vault",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("project", "", "project directory the vault and socket are scoped to (default: current directory)")
	rootCmd.PersistentFlags().Bool("force-local", false, "always use a project-local vault, even if none exists yet")
	rootCmd.PersistentFlags().String("socket-dir", "", "override the directory sockets are created under")
	rootCmd.PersistentFlags().String("keyfile", "", "path to a file holding the vault master key")

	startCmd.Flags().Duration("tick", rotation.DefaultTick, "how often the rotation scheduler checks for due rotations")
	startCmd.Flags().Bool("no-rotation", false, "disable the rotation scheduler for this run")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Unlock the vault and serve requests until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromCommand(cmd)
		noRotation, _ := cmd.Flags().GetBool("no-rotation")

		vaultPath, err := vault.ResolvePath(cfg.Project, cfg.ForceLocal)
		if err != nil {
			return fmt.Errorf("resolve vault path: %w", err)
		}

		key, err := keysource.Resolve(cfg.Keyfile, vaultPath, nil)
		if err != nil {
			return fmt.Errorf("resolve master key: %w", err)
		}

		vlt, err := vault.Open(vaultPath)
		if err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
		if err := vlt.LoadKey(key); err != nil {
			vlt.Close()
			return fmt.Errorf("unlock vault: %w", err)
		}

		socketPath, err := daemonclient.ResolveSocketPath(cfg.Project, cfg.ForceLocal, cfg.SocketDir)
		if err != nil {
			vlt.Close()
			return fmt.Errorf("resolve socket path: %w", err)
		}

		socketDir := daemon.SocketDir(cfg.SocketDir)
		logger, logFile, err := dlog.OpenFile(daemon.DaemonLogPath(socketDir))
		if err != nil {
			vlt.Close()
			return fmt.Errorf("open daemon log: %w", err)
		}
		defer logFile.Close()

		var manager *rotation.Manager
		if !noRotation {
			manager = rotation.NewManager(vlt, providers.NewRegistry())
		}

		srv, err := daemon.New(vlt, socketPath, manager, cfg.Tick, daemon.RotationLogPath(socketDir), metrics.New(), logger)
		if err != nil {
			vlt.Close()
			return fmt.Errorf("build daemon: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info("shutdown_signal_received").Send()
			srv.Shutdown()
			cancel()
		}()

		logger.Info("daemon_starting").Str("socket", socketPath).Send()
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped: %w", err)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon for this project is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromCommand(cmd)

		socketPath, err := daemonclient.ResolveSocketPath(cfg.Project, cfg.ForceLocal, cfg.SocketDir)
		if err != nil {
			return fmt.Errorf("resolve socket path: %w", err)
		}

		client := daemonclient.New(socketPath)
		resp, err := client.Status()
		if err != nil {
			fmt.Println("daemon not running")
			return nil
		}

		fmt.Printf("daemon running: %d secrets loaded, scheduler %s\n", resp.SecretsLoaded, resp.SchedulerState)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running daemon to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromCommand(cmd)

		socketPath, err := daemonclient.ResolveSocketPath(cfg.Project, cfg.ForceLocal, cfg.SocketDir)
		if err != nil {
			return fmt.Errorf("resolve socket path: %w", err)
		}

		client := daemonclient.New(socketPath)
		client.DialTimeout = 2 * time.Second
		if _, err := client.Shutdown(); err != nil {
			return fmt.Errorf("daemon did not respond: %w", err)
		}

		fmt.Println("shutdown requested")
		return nil
	},
}
