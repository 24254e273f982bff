package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentdeck/internal/auth"
	"agentdeck/internal/backend"
	"agentdeck/internal/bridge"
	"agentdeck/internal/config"
	"agentdeck/internal/task"
)

// NewServeCmd creates the serve command: run the local console bridge
// and the background credential refresher until interrupted.
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local console bridge",
		Long: `Serve starts the local bridge server (HTTP API plus WebSocket event
feed for console UIs) and the background credential refresher. Config
file changes are picked up without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config
			if port != 0 {
				cfg.Bridge.Port = port
			}

			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}
			store, err := cliCtx.GetStore()
			if err != nil {
				return err
			}

			refresher := auth.NewRefresher(store, cfg.Auth, func(baseURL string) auth.Authenticator {
				return backend.NewClient(baseURL, cfg.Auth.VerifyTimeout)
			})
			if err := refresher.Start(); err != nil {
				return err
			}
			defer refresher.Stop()

			watcher, err := config.NewWatcher(cliCtx.ConfigPath)
			if err != nil {
				cliCtx.Log().Warn().Err(err).Msg("Config watcher unavailable")
			} else {
				watcher.OnReload(func(updated *config.Config) {
					cliCtx.Log().Info().Msg("Configuration reloaded")
					*cfg = *updated
				})
				if err := watcher.Start(); err != nil {
					cliCtx.Log().Warn().Err(err).Msg("Config watcher failed to start")
				} else {
					defer watcher.Stop()
				}
			}

			server := bridge.NewServer(cfg, store, task.NewTracker(db), task.NewRegistry())

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			fmt.Fprintf(cmd.OutOrStdout(), "Bridge listening on %s:%d (Ctrl-C to stop)\n",
				cfg.Bridge.Host, cfg.Bridge.Port)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				cliCtx.Log().Info().Str("signal", sig.String()).Msg("Shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override the configured bridge port")
	return cmd
}
