package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/eqtlab/paycache-syncer/syncer"
)

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncer",
		Short: "syncer keeps a local cache of Stellar account payments",
		Long: `syncer mirrors the payment history of Stellar accounts from Horizon into a local store,
keeps it up to date from a saved cursor, repairs missing memos and answers range and memo queries
from the cache. Configuration is read from the environment.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}

	cmd.AddCommand(
		newRunCmd(a),
		newBackfillCmd(a),
		newRefreshCmd(a),
		newCoverageCmd(a),
		newRehydrateCmd(a),
		newQueryCmd(a),
		newSumCmd(a),
		newResetCmd(a),
	)

	return cmd
}

// parseISO accepts a date or a full timestamp and renders it in the local ISO layout. Empty stays empty.
func parseISO(flag, value string) (string, error) {
	iso, err := syncer.NormalizeISO(value)
	if err != nil {
		return "", fmt.Errorf("--%s: %w", flag, err)
	}
	return iso, nil
}

// spinnerProgress renders progress events of one call on a pterm spinner.
func spinnerProgress(spinner *pterm.SpinnerPrinter) syncer.ProgressFunc {
	return func(p syncer.Progress) {
		switch p.Stage {
		case syncer.StageStart:
			spinner.UpdateText(fmt.Sprintf("%s %s: starting", p.Phase, p.AccountID))
		case syncer.StagePage:
			text := fmt.Sprintf("%s %s: page %d, %d records", p.Phase, p.AccountID, p.Page, p.Records)
			if p.Total > 0 {
				text = fmt.Sprintf("%s %s: %d/%d records", p.Phase, p.AccountID, p.Records, p.Total)
			}
			if p.Oldest != "" {
				text += ", reached " + p.Oldest
			}
			spinner.UpdateText(text)
		}
	}
}

func requireAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("--account is required")
	}
	return nil
}
