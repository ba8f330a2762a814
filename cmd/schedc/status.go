package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/open-schedule/schedule-client/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		tables := st.Tables()
		pending := len(st.PendingTableCreates()) + len(st.PendingTaskCreates())
		userID := st.UserIDByName(cfg.Username)

		fmt.Print(renderer().Status(daemonState(cfg), userID, len(tables), pending))
		return nil
	},
}

// daemonState probes the daemon's observer health endpoint. Without an
// observer port there is nothing to ask, so the state is unknown.
func daemonState(cfg config.Config) string {
	if cfg.ObserverPort == 0 {
		return "unknown (observer disabled)"
	}

	client := http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.ObserverPort))
	if err != nil {
		return "daemon not running"
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "daemon unhealthy"
	}
	return "daemon running"
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
