package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/scriptstash/scriptstash/internal/runner"
)

var runRefresh bool

var runCmd = &cobra.Command{
	Use:   "run <name> [args...]",
	Short: "Execute a script, fetching it first if needed",
	Long: `Resolves the script to its cached body (fetching from the remote when
no local copy exists), then executes it through 'uv run'. Everything
after the script name is passed to the script untouched; the script's
exit code becomes this command's exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		name := args[0]
		path, err := eng.EnsureScript(cmd.Context(), name, runRefresh)
		if err != nil {
			return err
		}
		detail("running %s", path)

		r := &runner.Runner{Logger: appLogger(stateRoot(cfg))}
		code, err := r.Run(cmd.Context(), path, args[1:])
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runRefresh, "refresh", false, "re-fetch the script from the remote before running")
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}
