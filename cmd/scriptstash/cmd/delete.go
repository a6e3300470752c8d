package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a script from the inventory and the remote",
	Long: `Deletes the script's remote document (best-effort), removes its entry
from the mapping record on both sides, and drops the cached body. This
is the only operation that removes entries; sync never deletes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		if !deleteForce {
			var sure bool
			confirm := huh.NewConfirm().
				Title(fmt.Sprintf("Delete '%s' locally and remotely?", name)).
				Affirmative("Delete").
				Negative("Keep").
				Value(&sure)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !sure {
				info("Kept '%s'.", name)
				return nil
			}
		}

		if err := eng.RemoveScript(cmd.Context(), name); err != nil {
			return err
		}
		info("Deleted '%s'.", name)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "delete without asking")
	rootCmd.AddCommand(deleteCmd)
}
