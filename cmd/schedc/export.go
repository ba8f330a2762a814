package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Dump the local store as YAML",
	Long: `Dump every table, task, comment and grant as YAML, for inspection or
backup. Writes to stdout unless a file is given.`,
	Args: cobra.MaximumNArgs(1),
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

		out, err := yaml.Marshal(st.Tables())
		if err != nil {
			return fmt.Errorf("marshal store: %w", err)
		}

		if len(args) == 1 {
			if err := os.WriteFile(args[0], out, 0o644); err != nil {
				return err
			}
			fmt.Printf("exported to %s\n", args[0])
			return nil
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
