package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"acorn/addr"
	"acorn/amount"
	"acorn/cache"
	"acorn/config"
	"acorn/db"
	"acorn/log"
	"acorn/rpc"
	"acorn/tasks"
	"acorn/tx"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyStored bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show the balance of every configured asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := setup(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.GetRequestTimeout())
		defer cancel()

		reg := config.GetAssets()
		syncer := &tasks.Syncer{Ledger: newClient(), Assets: reg, Watch: []addr.Address{owner}}
		refreshErr := syncer.RefreshBalances(ctx, owner)

		cached := cache.Balances(owner)
		if len(cached) == 0 && refreshErr != nil {
			return refreshErr
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, a := range reg.All() {
			b, ok := cached[a.ID]
			if !ok {
				fmt.Fprintf(w, "%s\t-\n", a.Symbol)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\tslot %d\n", a.Symbol, amount.Format(b.Amount, a.Decimals), b.Slot)
		}
		if refreshErr != nil {
			log.Printf("Some balances could not be fetched: %v", refreshErr)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Show recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := setup(args[0])
		if err != nil {
			return err
		}

		var txs []tx.Transaction
		if historyStored {
			db.Init()
			txs, err = db.GetTransactions(owner, historyLimit)
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.GetRequestTimeout())
			defer cancel()

			var raw []*rpc.RawRecord
			raw, err = newClient().GetRecentRecords(ctx, owner, historyLimit)
			txs = tx.ClassifyAll(raw, owner, config.GetAssets(), config.GetGoroutines())
		}
		if err != nil {
			return err
		}

		printHistory(txs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of transactions")
	historyCmd.Flags().BoolVar(&historyStored, "stored", false, "Read the history stored by sync instead of the ledger")
}

// setup loads config for one-shot commands and decodes the address argument.
func setup(address string) (addr.Address, error) {
	log.Init()
	config.Load(false)

	owner, err := addr.Decode(address)
	if err != nil {
		return addr.Address{}, fmt.Errorf("%s: %w", address, err)
	}
	return owner, nil
}

func printHistory(txs []tx.Transaction) {
	reg := config.GetAssets()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSIGNATURE\tDIRECTION\tAMOUNT\tCOUNTERPARTY\tSTATUS")

	for _, t := range txs {
		when := "-"
		if t.Timestamp > 0 {
			when = time.UnixMilli(t.Timestamp).Format("2006-01-02 15:04:05")
		}

		shown := "-"
		if t.Direction != tx.Unknown {
			a, _ := reg.Get(t.AssetID)
			shown = fmt.Sprintf("%s %s", amount.Format(t.Amount, a.Decimals), a.Symbol)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			when,
			addr.TruncateForDisplay(t.Signature),
			t.Direction,
			shown,
			addr.TruncateForDisplay(t.Counterparty),
			t.Status,
		)
	}
	w.Flush()
}
