package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/scriptstash/scriptstash/internal/discovery"
	"github.com/scriptstash/scriptstash/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local inventory with the remote mapping record",
	Long: `Fetches the remote mapping record, merges it with local state entry by
entry (the later timestamp wins, ties go to the remote), publishes any
never-published local scripts, and pushes the merged record back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncMode(cmd, engine.ModeSync)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish local scripts and push the merged mapping record",
	Long: `Like sync, but guarantees the remote mapping record exists afterwards,
creating it when this is the first machine to publish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncMode(cmd, engine.ModePush)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Adopt the remote mapping record, discarding local-only entries",
	Long: `Fetches and adopts the remote mapping record without writing anything
remotely. Local entries that were already published but are absent from
the remote record are dropped; never-published local scripts are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncMode(cmd, engine.ModePull)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
}

func runSyncMode(cmd *cobra.Command, mode engine.Mode) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	res, err := executeSync(cmd.Context(), eng, mode)
	if err != nil {
		var conflict *engine.SyncConflictError
		if errors.As(err, &conflict) {
			errorf("%s", conflict)
		}
		return err
	}
	reportResult(res)
	return nil
}

// executeSync runs the engine, resolving mapping-record ambiguity
// interactively if discovery surfaces it.
func executeSync(ctx context.Context, eng *engine.Engine, mode engine.Mode) (*engine.Result, error) {
	res, err := eng.Run(ctx, mode)
	var amb *discovery.AmbiguousMappingError
	if !errors.As(err, &amb) {
		return res, err
	}
	if err := resolveAmbiguity(ctx, eng, amb); err != nil {
		return nil, err
	}
	return eng.Run(ctx, mode)
}

// resolveAmbiguity asks the operator which candidate document is the real
// mapping record and persists the choice as the pointer. The record itself
// is merged by the caller's rerun, so no local data is overwritten here.
func resolveAmbiguity(ctx context.Context, eng *engine.Engine, amb *discovery.AmbiguousMappingError) error {
	opts := make([]huh.Option[string], len(amb.Candidates))
	for i, c := range amb.Candidates {
		label := fmt.Sprintf("%s  (updated %s)", c.DocumentID, c.UpdatedAt.Format(time.RFC1123))
		opts[i] = huh.NewOption(label, c.DocumentID)
	}

	var chosen string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Multiple documents claim to be the mapping record. Adopt which one?").
			Description("The others will be ignored; delete them remotely once you are sure.").
			Options(opts...).
			Value(&chosen),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("resolving mapping ambiguity: %w", err)
	}

	adopted, err := eng.Finder.Adopt(ctx, chosen)
	if err != nil {
		return err
	}
	if err := eng.Store.SavePointer(&adopted.Pointer); err != nil {
		return err
	}
	info("Adopted mapping document %s", chosen)
	return nil
}

func reportResult(res *engine.Result) {
	for _, a := range res.Actions {
		detail("%-8s %s", a.Action, a.Name)
	}
	for _, name := range res.Published {
		info("Published '%s'", name)
	}
	if res.CreatedMapping {
		info("Created the remote mapping record.")
	}
	if res.Retried {
		detail("remote moved during push; merged again and retried")
	}

	verb := "unchanged"
	if res.PushedMapping {
		verb = "pushed"
	}
	info("%s complete: %d scripts tracked, mapping record %s.",
		titleCase(string(res.Mode)), len(res.Record.Entries), verb)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
