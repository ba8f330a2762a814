package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open-schedule/schedule-client/internal/config"
	"github.com/open-schedule/schedule-client/internal/events"
	"github.com/open-schedule/schedule-client/internal/session"
	"github.com/open-schedule/schedule-client/internal/storage/sqlite"
	"github.com/open-schedule/schedule-client/internal/store"
	"github.com/open-schedule/schedule-client/internal/ui"
)

var version = "0.3.0"

var (
	configDirFlag string
	plainFlag     bool

	rootCmd = &cobra.Command{
		Use:   "schedc",
		Short: "Offline-first collaborative scheduling client",
		Long: `schedc keeps shared scheduling tables in a local database and syncs
them with a central server when one is reachable.

Every mutation lands locally first: tables and tasks are usable the
moment they are created, and unconfirmed creations are resent once the
sync daemon (schedc run) authenticates. Remote changes from other users
flow back into the local database through the same daemon.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "config directory (default: per-user)")
	rootCmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "disable styled output")
}

func loadConfig() (config.Config, *viper.Viper, error) {
	dir := configDirFlag
	if dir == "" {
		var err error
		dir, err = config.DefaultDir()
		if err != nil {
			return config.Config{}, nil, err
		}
	}
	return config.Load(dir)
}

// openStore loads the persisted store. The caller closes the repository.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, *sqlite.Repository, error) {
	repo, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(repo, config.NewLogger(cfg, "[store] "))
	if err := st.Load(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return st, repo, nil
}

func sessionConfig(cfg config.Config) session.Config {
	scfg := session.DefaultConfig()
	scfg.Addr = cfg.ServerAddr()
	scfg.Username = cfg.Username
	scfg.Password = cfg.Password
	scfg.ReconnectInterval = cfg.ReconnectInterval
	scfg.Logger = config.NewLogger(cfg, "[session] ")
	return scfg
}

// offlineSession builds a session for local mutations without running its
// connection loop. Creations it records are flushed by the daemon on its
// next authentication.
func offlineSession(cfg config.Config, st *store.Store) *session.Session {
	sess := session.New(sessionConfig(cfg), st, events.NewBus())
	sess.AdoptUser(st.UserIDByName(cfg.Username))
	return sess
}

func renderer() *ui.Renderer {
	if plainFlag {
		return ui.NewPlainRenderer()
	}
	return ui.NewRenderer()
}
