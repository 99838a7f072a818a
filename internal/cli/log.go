package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/causetdb/internal/causet"
)

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log [tx|head]",
		Short: "List transactions or show what one changed",
		Long: `Without an argument, list every committed transaction with its
instant, datom count and payload hash. With a transaction id, or "head"
for the latest, also show the datoms it asserted and retracted.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := commandContext(cmd)

			if len(args) == 0 {
				txs, err := s.store.Transactions(ctx)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
				}
				list := TxListView{Transactions: make([]TxView, 0, len(txs))}
				for _, t := range txs {
					meta, ok, err := s.store.TxMeta(ctx, t)
					if err != nil {
						return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
					}
					if ok {
						list.Transactions = append(list.Transactions, newTxView(meta))
					}
				}
				return f.Success(list)
			}

			var id causet.Entid
			if args[0] == "head" {
				id = s.store.Head()
			} else {
				n, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeInput, fmt.Sprintf("invalid transaction id %q", args[0]), nil)
				}
				id = causet.Entid(n)
			}

			meta, ok, err := s.store.TxMeta(ctx, id)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
			}
			if !ok {
				return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("transaction %d not found", id), nil)
			}
			datoms, err := s.store.Log(ctx, id)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStorage, err.Error(), nil)
			}
			view := newTxView(meta)
			view.Datoms = datomViews(s.store.Schema(), datoms)
			return f.Success(view)
		},
	}
}
