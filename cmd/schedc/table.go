package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Manage scheduling tables",
}

var tableCreateCmd = &cobra.Command{
	Use:   "create <name> [description]",
	Short: "Create a table locally and queue it for sync",
	Args:  cobra.RangeArgs(1, 2),
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

		description := ""
		if len(args) > 1 {
			description = args[1]
		}

		sess := offlineSession(cfg, st)
		localID, err := sess.CreateTable(cmd.Context(), args[0], description)
		if err != nil {
			return err
		}
		fmt.Printf("created table %d (pending sync)\n", localID)
		return nil
	},
}

var tableListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tables",
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

		fmt.Print(renderer().Tables(st.Tables()))
		return nil
	},
}

var tableShowCmd = &cobra.Command{
	Use:   "show <table-id>",
	Short: "Show a table with its tasks and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
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

		view, ok := st.TableView(tableID)
		if !ok {
			return fmt.Errorf("table %d not found", tableID)
		}
		fmt.Print(renderer().Table(view, st.UserName))
		return nil
	},
}

var tableRenameCmd = &cobra.Command{
	Use:   "rename <table-id> <name> [description]",
	Short: "Append a change record renaming a table",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
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

		description := ""
		if len(args) > 2 {
			description = args[2]
		} else if view, ok := st.TableView(tableID); ok {
			description = view.Description
		}

		sess := offlineSession(cfg, st)
		if err := sess.ChangeTable(cmd.Context(), tableID, args[1], description); err != nil {
			return err
		}
		fmt.Printf("table %d renamed to %q\n", tableID, args[1])
		return nil
	},
}

func parseID(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return int32(n), nil
}

func init() {
	tableCmd.AddCommand(tableCreateCmd, tableListCmd, tableShowCmd, tableRenameCmd)
	rootCmd.AddCommand(tableCmd)
}
