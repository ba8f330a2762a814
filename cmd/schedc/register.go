package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-schedule/schedule-client/internal/session"
)

var registerCmd = &cobra.Command{
	Use:   "register <display-name>",
	Short: "Create an account on the configured server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Username == "" || cfg.Password == "" {
			return errors.New("set server.username and server.password before registering")
		}

		if err := session.Register(cmd.Context(), sessionConfig(cfg), args[0]); err != nil {
			return err
		}
		fmt.Printf("registered %q on %s\n", cfg.Username, cfg.ServerAddr())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
