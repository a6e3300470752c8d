package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scriptstash/scriptstash/internal/engine"
)

var (
	initOwner string
	initForce bool
)

// initTemplate is the default scriptstash.yaml scaffold.
const initTemplate = `# scriptstash configuration
version: 1

# Remote account that owns the script documents.
owner: %s

# Newly created documents are private by default.
private_documents: true

# root: ~/.scriptstash          # local state directory
# api_base_url: https://api.github.com
# timeout_seconds: 30
# token_file: ~/.scriptstash/token

# generation:
#   model: claude-sonnet-4-0
#   max_tokens: 4096
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration and adopt an existing mapping record",
	Long: `Writes a starter scriptstash.yaml, creates the local state directory,
and, when a token is available, searches your remote documents for an
existing mapping record to adopt, so a second machine picks up where the
first left off.

Use --force to overwrite an existing configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if initOwner == "" {
			return fmt.Errorf("--owner is required")
		}

		outPath := configPath
		if outPath == "" {
			return fmt.Errorf("no config path; pass --config explicitly")
		}
		if !initForce {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		content := fmt.Sprintf(initTemplate, initOwner)
		if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		info("Created %s", outPath)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := newStore(cfg); err != nil {
			return err
		}
		info("Initialized state directory %s", stateRoot(cfg))

		if cfg.Token() == "" {
			info("")
			info("No access token found. Next steps:")
			info("  1. Run 'scriptstash auth setup' (or set %s)", "SCRIPTSTASH_TOKEN")
			info("  2. Run 'scriptstash sync' to adopt or create your mapping record")
			return nil
		}

		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}
		res, err := executeSync(cmd.Context(), eng, engine.ModeSync)
		if err != nil {
			return err
		}
		if res.Pointer != nil {
			info("Adopted mapping record %s with %d script(s): %s",
				res.Pointer.DocumentID, len(res.Record.Entries), strings.Join(res.Record.Names(), ", "))
		} else {
			info("No mapping record found remotely; one will be created on your first push.")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initOwner, "owner", "", "remote account name (required)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	rootCmd.AddCommand(initCmd)
}
