package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type resetFlags struct {
	Account string
	Wipe    bool
}

func newResetCmd(a *app) *cobra.Command {
	flags := &resetFlags{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the sync cursor of an account, or wipe the whole cache",
		Long: `Without --wipe the account's cursor is removed, so the next refresh starts over from the newest
payment; cached payments are kept. With --wipe every cached payment and every cursor is deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if flags.Wipe {
				if err := a.store.Wipe(ctx); err != nil {
					return err
				}
				pterm.Success.Println("cache wiped")
				return nil
			}

			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			if err := a.store.ClearCursor(ctx, flags.Account); err != nil {
				return err
			}
			pterm.Success.Printfln("cursor of %s cleared", flags.Account)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().BoolVar(&flags.Wipe, "wipe", false, "Delete every cached payment and cursor")

	return cmd
}
