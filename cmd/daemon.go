package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/config"
	rt "github.com/grovetools/superstate/internal/daemon"
	"github.com/grovetools/superstate/internal/daemon/pidfile"
	"github.com/grovetools/superstate/internal/daemon/server"
	"github.com/grovetools/superstate/pkg/daemon"
	"github.com/grovetools/superstate/pkg/paths"
	"github.com/grovetools/superstate/pkg/process"
)

// NewServeCmd returns the command running the daemon in the foreground.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon",
		Long: `Index the vault, then keep the index current by watching the vault and
the configuration files. The daemon answers queries on a unix socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cli.GetLogger(cmd, cfg, "daemon")
			pidPath := paths.PidFilePath()
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("failed to create state directories: %w", err)
			}

			// 1. Acquire Lock
			if err := pidfile.Acquire(pidPath); err != nil {
				return err
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 2. Open persistence, index the vault, register watchers
			runtime, err := rt.Open(cfg, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := runtime.Initialize(ctx); err != nil {
				_ = runtime.Close(context.Background())
				return err
			}
			configDirs := []string{paths.ConfigDir()}
			if cfg.Dir() != "" {
				configDirs = append(configDirs, cfg.Dir())
			}
			runtime.Watch(configDirs, func() (*config.Config, error) { return cli.LoadConfig(cmd) })

			// 3. Setup Server with engine
			srv := server.New(logger)
			srv.SetEngine(runtime.Engine)
			srv.SetMetrics(runtime.Registry)
			srv.SetRunningConfig(&server.RunningConfig{
				VaultRoot:      runtime.Vault.Root(),
				ConfigFile:     cfg.Dir(),
				Workers:        cfg.Index.Workers,
				Debounce:       cfg.Debounce(),
				SyncProperties: cfg.SyncProperties(),
				Persistence:    persistenceLabel(cfg),
				Socket:         cfg.Server.Socket,
				StartedAt:      time.Now(),
			})

			// 4. Handle Signals
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			engineDone := make(chan struct{})
			go func() {
				defer close(engineDone)
				runtime.Engine.Start(ctx)
			}()

			serveErr := make(chan error, 1)
			go func() {
				logger.WithField("pid", os.Getpid()).Info("Starting daemon")
				serveErr <- srv.ListenAndServe(cfg.Server.Socket)
			}()

			select {
			case <-stop:
				logger.Info("Received stop signal")
			case err = <-serveErr:
				if err != nil {
					logger.WithError(err).Error("Server failed")
				}
			}

			// 5. Shut down: stop accepting requests, stop watchers, drain queues
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Errorf("Server shutdown error: %v", serr)
			}
			<-engineDone
			if cerr := runtime.Close(shutdownCtx); cerr != nil {
				logger.WithError(cerr).Error("Failed to close engine")
			}
			_ = os.Remove(cfg.Server.Socket)
			return err
		},
	}
	return cmd
}

func persistenceLabel(cfg *config.Config) string {
	if cfg.Persistence.InMemory {
		return "memory"
	}
	return cfg.Persistence.Path
}

// NewStopCmd returns the command stopping a running daemon.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			gone, err := process.Terminate(pid, 10*time.Second)
			if err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			if !gone {
				return fmt.Errorf("daemon (PID %d) did not exit in time", pid)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped daemon (PID %d)\n", pid)
			return nil
		},
	}
}

// NewStatusCmd returns the command reporting daemon state.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				os.Exit(1) // Return non-zero for stopped state (useful for scripts)
			}

			client, err := daemon.Connect(cfg.Server.Socket)
			if err != nil {
				return err
			}
			defer client.Close()
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]interface{}{
					"pid":    pid,
					"socket": cfg.Server.Socket,
					"stats":  stats,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\nSocket: %s\n", pid, cfg.Server.Socket)
			printStats(cmd, stats)
			return nil
		},
	}
}
