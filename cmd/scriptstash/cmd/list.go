package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var listTag string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the script inventory",
	Long: `Lists every tracked script with its publication state, last update
time, and tags. Use --tag to filter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := newStore(cfg)
		if err != nil {
			return err
		}
		rec, err := st.Load()
		if err != nil {
			return err
		}

		nameStyle := lipgloss.NewStyle().Bold(true)
		dimStyle := lipgloss.NewStyle().Faint(true)
		pendingStyle := lipgloss.NewStyle().Italic(true)
		if noColor {
			nameStyle, dimStyle, pendingStyle = lipgloss.NewStyle(), lipgloss.NewStyle(), lipgloss.NewStyle()
		}

		shown := 0
		for _, name := range rec.Names() {
			e := rec.Entries[name]
			if listTag != "" && !slices.Contains(e.Tags, listTag) {
				continue
			}
			shown++

			state := "synced"
			if !e.Published() {
				state = pendingStyle.Render("pending")
			}
			// Pad before styling so ANSI escapes don't skew the columns.
			line := fmt.Sprintf("%s %-8s %s", nameStyle.Render(fmt.Sprintf("%-24s", name)), state,
				dimStyle.Render(e.UpdatedAt.Format("2006-01-02 15:04")))
			if len(e.Tags) > 0 {
				line += "  " + dimStyle.Render("["+strings.Join(e.Tags, ", ")+"]")
			}
			fmt.Println(line)
		}

		if shown == 0 {
			if listTag != "" {
				info("No scripts tagged '%s'.", listTag)
			} else {
				info("No scripts yet. Try 'scriptstash create'.")
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listTag, "tag", "", "only show scripts carrying this tag")
	rootCmd.AddCommand(listCmd)
}
