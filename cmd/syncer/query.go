package main

import (
	"iter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/eqtlab/paycache-syncer/syncer"
)

type queryFlags struct {
	Account    string
	From       string
	To         string
	Memo       string
	Normalized bool
	Limit      int
}

func (f *queryFlags) window() (syncer.Range, error) {
	from, err := parseISO("from", f.From)
	if err != nil {
		return syncer.Range{}, err
	}
	to, err := parseISO("to", f.To)
	if err != nil {
		return syncer.Range{}, err
	}
	return syncer.Range{From: from, To: to}, nil
}

func newQueryCmd(a *app) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List cached payments of an account, newest first",
		Long: `List cached payments created in [--from, --to). With --memo only payments carrying exactly that
memo are listed; --normalized compares memos ignoring case, zero-width characters and extra spaces.
Nothing is fetched remotely.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			r, err := flags.window()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var seq iter.Seq2[syncer.PaymentRecord, error]
			switch {
			case flags.Memo == "":
				seq = a.store.IterateByAccountCreatedRange(ctx, flags.Account, r)
			case flags.Normalized:
				seq = a.store.IterateByAccountNormalizedMemoRange(ctx, flags.Account, flags.Memo, r)
			default:
				seq = a.store.IterateByAccountMemoRange(ctx, flags.Account, flags.Memo, r)
			}

			data := pterm.TableData{{"Created", "Type", "From", "To", "Amount", "Asset", "Memo"}}
			for rec, err := range seq {
				if err != nil {
					return err
				}
				if flags.Limit > 0 && len(data) > flags.Limit {
					break
				}
				data = append(data, paymentRow(rec))
			}

			if len(data) == 1 {
				pterm.Info.Println("no cached payments match")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&flags.From, "from", "f", "", "Window start, inclusive")
	cmd.Flags().StringVarP(&flags.To, "to", "t", "", "Window end, exclusive")
	cmd.Flags().StringVarP(&flags.Memo, "memo", "m", "", "Only payments with this memo")
	cmd.Flags().BoolVar(&flags.Normalized, "normalized", false, "Compare memos normalized")
	cmd.Flags().IntVarP(&flags.Limit, "limit", "n", 50, "Rows to print, 0 prints all")

	return cmd
}

func paymentRow(rec syncer.PaymentRecord) []string {
	from, to := rec.From, rec.To
	if rec.OperationType == syncer.OperationCreateAccount {
		from, to = rec.Funder, rec.Account
	}

	asset := "XLM"
	if !rec.IsNative() {
		asset = rec.AssetCode
	}

	return []string{rec.CreatedAt, string(rec.OperationType), short(from), short(to), rec.Value(), asset, rec.Memo}
}

// short abbreviates an account id to its first and last characters.
func short(account string) string {
	if len(account) <= 12 {
		return account
	}
	return account[:6] + "…" + account[len(account)-4:]
}

func newSumCmd(a *app) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "sum",
		Short: "Sum native payments received with a memo",
		Long: `Sum the XLM received by the account in [--from, --to) through payments whose memo contains --memo.
Only the local cache is read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(flags.Account); err != nil {
				return err
			}
			r, err := flags.window()
			if err != nil {
				return err
			}

			sum, err := syncer.SumIncomingNative(cmd.Context(), a.store, flags.Account, flags.Memo, r)
			if err != nil {
				return err
			}

			pterm.Success.Printfln(
				"%s XLM received in %d payments (%d cached payments with the memo)",
				sum.Total.StringFixed(7), sum.Matches, sum.Scanned,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.Account, "account", "a", "", "Account id")
	cmd.Flags().StringVarP(&flags.From, "from", "f", "", "Window start, inclusive")
	cmd.Flags().StringVarP(&flags.To, "to", "t", "", "Window end, exclusive")
	cmd.Flags().StringVarP(&flags.Memo, "memo", "m", "", "Memo substring, required")

	return cmd
}
