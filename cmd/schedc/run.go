package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-schedule/schedule-client/internal/config"
	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Run the background daemon that holds the server connection.

The daemon authenticates with the configured credentials, resends any
locally created tables and tasks the server has not confirmed yet, and
applies remote changes to the local database as they arrive. Connection
loss is retried forever with a fixed backoff.

With observer.port set, the daemon also serves a WebSocket bridge
(ws://localhost:<port>/ws) broadcasting store and session events as JSON
for UI layers to consume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, v, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Username == "" {
			return errors.New("no username configured; set server.username or SCHEDC_SERVER_USERNAME")
		}

		logger := config.NewLogger(cfg, "[schedc] ")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, repo, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		bus := events.NewBus()
		sess := session.New(sessionConfig(cfg), st, bus)
		sess.AdoptUser(st.UserIDByName(cfg.Username))

		if cfg.ObserverPort > 0 {
			obs := events.NewObserver(bus, &events.ObserverConfig{
				Port:   cfg.ObserverPort,
				Logger: config.NewLogger(cfg, "[observer] "),
			})
			if err := obs.Start(); err != nil {
				return fmt.Errorf("start observer: %w", err)
			}
			defer obs.Stop()
			logger.Printf("observer bridge on ws://%s/ws", obs.Addr())
		}

		// Connection settings take effect on the next reconnect cycle;
		// the watch surfaces edits without a restart of the process.
		config.Watch(v, logger, func(next config.Config) {
			if next.ServerAddr() != cfg.ServerAddr() {
				logger.Printf("server address changed to %s, applies on next reconnect", next.ServerAddr())
			}
		})

		logger.Printf("daemon %s starting, server %s, database %s", sess.ID(), cfg.ServerAddr(), cfg.DatabasePath)

		err = sess.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Printf("daemon stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
