package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-schedule/schedule-client/internal/model"
)

var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Manage table permissions",
}

var permSetCmd = &cobra.Command{
	Use:   "set <table-id> <user-id> <none|read|write|owner>",
	Short: "Grant or revoke a user's access to a table",
	Long: `Grant or revoke a user's access to a table. Requires OWNER on the
table. Setting none removes the grant entirely.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID(args[1])
		if err != nil {
			return err
		}
		perm, err := parsePermission(args[2])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		sess := offlineSession(cfg, st)
		if err := sess.SetPermission(cmd.Context(), tableID, userID, perm); err != nil {
			return err
		}
		fmt.Printf("user %d on table %d: %s\n", userID, tableID, perm)
		return nil
	},
}

func parsePermission(s string) (model.Permission, error) {
	switch s {
	case "none":
		return model.PermissionNone, nil
	case "read":
		return model.PermissionRead, nil
	case "write":
		return model.PermissionWrite, nil
	case "owner":
		return model.PermissionOwner, nil
	default:
		return 0, fmt.Errorf("unknown permission %q (none, read, write, owner)", s)
	}
}

func init() {
	permCmd.AddCommand(permSetCmd)
	rootCmd.AddCommand(permCmd)
}
