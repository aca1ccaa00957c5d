package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"

	"acorn/addr"
	"acorn/amount"
	"acorn/asset"
	"acorn/cache"
	"acorn/config"
	"acorn/errs"
	"acorn/log"
	"acorn/signer"
	"acorn/tasks"
	"acorn/transfer"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"
)

var (
	sendTo    string
	sendAsset string
	sendYes   bool
)

var sendCmd = &cobra.Command{
	Use:   "send <from> <amount>",
	Short: "Send an asset through the signing relay",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := setup(args[0])
		if err != nil {
			return err
		}

		reg := config.GetAssets()
		a, ok := reg.Get(strings.ToUpper(sendAsset))
		if !ok {
			return fmt.Errorf("unknown asset %q, configured: %s", sendAsset, strings.Join(reg.IDs(), ", "))
		}

		ctx := cmd.Context()
		balances := &tasks.Syncer{
			Ledger: newClient(),
			Assets: reg,
			Watch:  []addr.Address{owner},
		}

		bus := EventBus.New()
		if err := balances.Subscribe(ctx, bus); err != nil {
			return err
		}
		err = bus.Subscribe(transfer.TopicState, func(s transfer.Snapshot) {
			if s.State == transfer.Processing {
				fmt.Println("Waiting for confirmation on your device... (Ctrl-C to cancel)")
			}
		})
		if err != nil {
			return err
		}

		o := transfer.New(signer.NewRelay(config.GetRelayURL()), transfer.WithPublisher(bus))
		return runSend(ctx, o, bufio.NewReader(os.Stdin), balances, owner, sendTo, args[1], a)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient address")
	sendCmd.Flags().StringVar(&sendAsset, "asset", asset.SOL, "Asset id")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "Skip the confirmation prompt")
}

// balanceRefresher is satisfied by *tasks.Syncer.
type balanceRefresher interface {
	RefreshBalances(ctx context.Context, owner addr.Address, assetIDs ...string) error
}

// latestBalance refreshes the cached snapshot of a and returns it.
// When the ledger is unreachable the last known snapshot is used.
func latestBalance(ctx context.Context, balances balanceRefresher, owner addr.Address, a asset.Asset) (uint64, error) {
	err := balances.RefreshBalances(ctx, owner, a.ID)

	available, _, ok := cache.GetBalance(owner, a.ID)
	if !ok {
		if err == nil {
			err = fmt.Errorf("%w: no %s balance for %s", errs.ErrNetwork, a.Symbol, owner)
		}
		return 0, err
	}

	if err != nil {
		log.Printf("Using last known %s balance: %v", a.Symbol, err)
	}
	return available, nil
}

func runSend(ctx context.Context, o *transfer.Orchestrator, in *bufio.Reader, balances balanceRefresher, owner addr.Address, to, amountText string, a asset.Asset) error {
	// Input errors are reported before the ledger is asked for a balance.
	if _, err := transfer.ValidateText(to, amountText, math.MaxUint64, a); err != nil {
		return err
	}

	available, err := latestBalance(ctx, balances, owner, a)
	if err != nil {
		return err
	}

	req, err := o.SubmitText(to, amountText, available, a)
	if err != nil {
		return err
	}

	for {
		if !sendYes {
			fmt.Printf("Send %s %s to %s? [y/N] ",
				amount.Format(req.Units, a.Decimals), a.Symbol, addr.TruncateForDisplay(req.Recipient.String()))
			if !ask(in) {
				return o.Cancel()
			}
		}

		snap, err := confirm(ctx, o)
		if err != nil {
			return err
		}

		if snap.State == transfer.Success {
			fmt.Printf("Sent. Signature: %s\n", snap.Signature)
			if left, _, ok := cache.GetBalance(owner, a.ID); ok {
				fmt.Printf("Balance: %s %s\n", amount.Format(left, a.Decimals), a.Symbol)
			}
			return o.Dismiss()
		}

		fmt.Printf("Transfer failed: %s\n%s\n", snap.Failure.Kind, snap.Failure.Guidance())
		if !snap.Failure.Retryable() {
			o.Dismiss()
			return snap.Failure
		}

		fmt.Print("Retry? [y/N] ")
		if !ask(in) {
			o.Dismiss()
			return snap.Failure
		}

		// The balance may have moved since the request was validated.
		available, err = latestBalance(ctx, balances, owner, a)
		if err == nil {
			_, err = transfer.Validate(req.Recipient.String(), req.Amount, available, a)
		}
		if err != nil {
			o.Dismiss()
			return err
		}

		if err := o.Retry(); err != nil {
			return err
		}
	}
}

// confirm runs the ceremony; an interrupt cancels it.
func confirm(ctx context.Context, o *transfer.Orchestrator) (transfer.Snapshot, error) {
	if err := o.Confirm(ctx); err != nil {
		return transfer.Snapshot{}, err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		select {
		case <-interrupt:
			if err := o.Cancel(); err != nil && !errors.Is(err, transfer.ErrIllegalTransition) {
				fmt.Println(err)
			}
		case <-finished:
		}
	}()

	return o.Wait(context.Background())
}

func ask(in *bufio.Reader) bool {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
