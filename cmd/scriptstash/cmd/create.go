package cmd

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/scriptstash/scriptstash/internal/engine"
	"github.com/scriptstash/scriptstash/internal/genai"
	"github.com/scriptstash/scriptstash/internal/inventory"
	"github.com/scriptstash/scriptstash/internal/metadata"
)

var (
	createTags  []string
	createYes   bool
	createLocal bool
)

var createCmd = &cobra.Command{
	Use:   "create <name> <prompt...>",
	Short: "Draft a new script from a natural-language prompt",
	Long: `Asks the generation model to draft a script for the given prompt, shows
the result for review, caches it locally, and publishes it. With --local
the script stays unpublished until the next sync or push.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		prompt := strings.Join(args[1:], " ")
		if err := inventory.ValidateName(name); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gen, err := newGenerator(cfg)
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		info("Generating '%s'...", name)
		body, err := gen.Generate(cmd.Context(), genai.Request{Name: name, Prompt: prompt, Tags: createTags})
		if err != nil {
			return err
		}

		printScriptPreview(name, body)

		if !createYes {
			var keep bool
			confirm := huh.NewConfirm().
				Title("Save this script?").
				Affirmative("Save").
				Negative("Discard").
				Value(&keep)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !keep {
				info("Discarded.")
				return nil
			}
		}

		if err := eng.Stage(name, body, createTags); err != nil {
			return err
		}
		if createLocal {
			info("Staged '%s'; it will be published on the next sync or push.", name)
			return nil
		}

		res, err := executeSync(cmd.Context(), eng, engine.ModePush)
		if err != nil {
			return err
		}
		reportResult(res)
		return nil
	},
}

// printScriptPreview renders the drafted script with its description and
// dependency list pulled from the metadata header.
func printScriptPreview(name, body string) {
	if quiet {
		return
	}

	titleStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Faint(true)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	if noColor {
		titleStyle = lipgloss.NewStyle()
		dimStyle = lipgloss.NewStyle()
	}

	header := titleStyle.Render(name)
	if h, _ := metadata.Decode(body); h != nil {
		if h.Description != "" {
			header += "\n" + h.Description
		}
		if len(h.Dependencies) > 0 {
			header += "\n" + dimStyle.Render("dependencies: "+strings.Join(h.Dependencies, ", "))
		}
	}

	info("%s", boxStyle.Render(header))
	info("%s", body)
}

func init() {
	createCmd.Flags().StringSliceVar(&createTags, "tag", nil, "tag(s) to attach to the script")
	createCmd.Flags().BoolVar(&createYes, "yes", false, "save without asking")
	createCmd.Flags().BoolVar(&createLocal, "local", false, "stage only; do not publish now")
	rootCmd.AddCommand(createCmd)
}
