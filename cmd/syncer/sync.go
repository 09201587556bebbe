package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/eqtlab/paycache-syncer/syncer"
)

type syncFlags struct {
	Account string
	Since   string
	From    string
	To      string
	Days    int
}

func newBackfillCmd(a *app) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Load the account history back to a date",
		Long: `Walk the account's payments from the newest one backwards and cache every record created
at or after --since. Without --since the whole history is loaded, bounded by SYNCER_MAX_BACKFILL_PAGES.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			since, err := parseISO("since", flags.Since)
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("backfill " + flags.Account)
			res, err := a.engine.Backfill(cmd.Context(), flags.Account, since, syncer.WithProgress(spinnerProgress(spinner)))
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}

			spinner.Success(pterm.Sprintf("backfill done: %d pages, %d records stored, %d skipped", res.Pages, res.Stored, res.Skipped))
			if res.ReachedStart {
				pterm.Info.Println("the start of the account history was reached")
			}
			if res.Truncated {
				pterm.Warning.Println(truncatedWarning(res.Pages))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&flags.Since, "since", "s", "", "Oldest date to cache, YYYY-MM-DD or RFC 3339")

	return cmd
}

// truncatedWarning explains a backfill stopped by the page ceiling. Every backfill walks from the newest
// payment, so only a higher ceiling reaches further back.
func truncatedWarning(pages int) string {
	return fmt.Sprintf(
		"stopped by the page ceiling after %d pages, raise SYNCER_MAX_BACKFILL_PAGES to reach further back",
		pages,
	)
}

func newRefreshCmd(a *app) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch payments that appeared after the saved cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("refresh " + flags.Account)
			res, err := a.engine.RefreshSinceCursor(cmd.Context(), flags.Account, syncer.WithProgress(spinnerProgress(spinner)))
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}

			if res.Initialized {
				spinner.Success(pterm.Sprintf("cursor initialized at %q, use backfill for older history", res.Cursor))
				return nil
			}
			spinner.Success(pterm.Sprintf("refresh done: %d pages, %d records stored, cursor %s", res.Pages, res.Stored, res.Cursor))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")

	return cmd
}

func newCoverageCmd(a *app) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Make sure the cache reaches back far enough",
		Long: `Backfill the account when its oldest cached payment is newer than the earlier of --from and
today minus --days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			from, err := parseISO("from", flags.From)
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("coverage " + flags.Account)
			res, err := a.engine.EnsureCoverage(cmd.Context(), flags.Account, flags.Days, from, syncer.WithProgress(spinnerProgress(spinner)))
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}

			if !res.Extended {
				spinner.Success(pterm.Sprintf("already covered back to %s (target %s)", res.Oldest, res.Target))
				return nil
			}
			spinner.Success(pterm.Sprintf("extended to %s: %d records stored", res.Target, res.Backfill.Stored))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().IntVarP(&flags.Days, "days", "d", 90, "Days of history to keep cached")
	cmd.Flags().StringVarP(&flags.From, "from", "f", "", "Date the cache must reach regardless of --days")

	return cmd
}

func newRehydrateCmd(a *app) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "rehydrate",
		Short: "Fill missing memos of cached payments",
		Long: `Look up the transaction of every cached payment in [--from, --to] that has no memo and store the
memo found. Without bounds the whole cached window is scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			from, err := parseISO("from", flags.From)
			if err != nil {
				return err
			}
			to, err := parseISO("to", flags.To)
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("rehydrate " + flags.Account)
			res, err := a.engine.RehydrateEmptyMemos(cmd.Context(), flags.Account, from, to, syncer.WithProgress(spinnerProgress(spinner)))
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}

			spinner.Success(pterm.Sprintf(
				"rehydrate done: %d scanned, %d without memo, %d updated, %d failed",
				res.Scanned, res.Candidates, res.Updated, res.Failed,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&flags.From, "from", "f", "", "Window start")
	cmd.Flags().StringVarP(&flags.To, "to", "t", "", "Window end, inclusive")

	return cmd
}
