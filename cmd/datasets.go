package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoki/data-agency/internal/ux"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage the session's loaded datasets",
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded datasets with their schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openSession()
		if err != nil {
			return err
		}
		schemas, err := reg.Schemas(reg.List())
		if err != nil {
			return err
		}
		fmt.Print(ux.DatasetList(schemas))
		return nil
	},
}

var datasetsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a dataset from the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openSession()
		if err != nil {
			return err
		}
		if !reg.Remove(args[0]) {
			return fmt.Errorf("no dataset named %q", args[0])
		}
		if err := saveSession(reg); err != nil {
			return err
		}
		fmt.Printf("✓ removed %s\n", args[0])
		return nil
	},
}

func init() {
	datasetsCmd.AddCommand(datasetsListCmd, datasetsRemoveCmd)
	rootCmd.AddCommand(datasetsCmd)
}
