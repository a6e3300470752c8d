package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scriptstash/scriptstash/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the remote access token",
}

var authSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store an access token for the remote document store",
	Long: `Prompts for a token without echoing it and stores it in the token file
with owner-only permissions. Environment variables (SCRIPTSTASH_TOKEN,
GITHUB_TOKEN) take precedence over the file when both are set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stderr, "Access token (input hidden): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return fmt.Errorf("empty token")
		}

		path := cfg.TokenFile
		if path == "" {
			path = config.DefaultTokenFile()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating token directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
			return fmt.Errorf("writing token file: %w", err)
		}

		info("Token stored in %s", path)
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the access token would come from",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, name := range []string{"SCRIPTSTASH_TOKEN", "GITHUB_TOKEN"} {
			if os.Getenv(name) != "" {
				info("Token source: environment variable %s", name)
				return nil
			}
		}

		path := cfg.TokenFile
		if path == "" {
			path = config.DefaultTokenFile()
		}
		if _, err := os.Stat(path); err == nil {
			info("Token source: file %s", path)
			return nil
		}

		info("No token configured. Run 'scriptstash auth setup'.")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetupCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
