package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/scriptstash/scriptstash/internal/metadata"
)

var editCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Edit a script and push the new body",
	Long: `Opens the cached script body in $EDITOR (fetching it first when no
local copy exists). On save the body is re-staged and, for published
scripts, pushed to the remote document immediately.`,
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

		path, err := eng.EnsureScript(cmd.Context(), name, false)
		if err != nil {
			return err
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		ed := exec.CommandContext(cmd.Context(), editor, path)
		ed.Stdin = os.Stdin
		ed.Stdout = os.Stdout
		ed.Stderr = os.Stderr
		if err := ed.Run(); err != nil {
			return fmt.Errorf("running editor %s: %w", editor, err)
		}

		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading edited script: %w", err)
		}
		if h, _ := metadata.Decode(string(body)); h == nil {
			errorf("'%s' no longer has a valid metadata header; dependencies will not be provisioned on run", name)
		}

		if err := eng.Stage(name, string(body), nil); err != nil {
			return err
		}

		rec, err := eng.Store.Load()
		if err != nil {
			return err
		}
		if rec.Entries[name].Published() {
			if err := eng.PushScript(cmd.Context(), name); err != nil {
				return err
			}
			info("Pushed '%s'.", name)
		} else {
			info("Staged '%s'; it will be published on the next sync or push.", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
}
