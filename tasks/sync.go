package tasks

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"acorn/addr"
	"acorn/asset"
	"acorn/cache"
	"acorn/errs"
	"acorn/log"
	"acorn/mail"
	"acorn/rpc"
	"acorn/tx"
)

// maxDelay caps the growth of the retry delay.
const maxDelay = 10 * time.Second

// Ledger is the part of rpc.Client the tasks use.
type Ledger interface {
	GetRecentRecords(ctx context.Context, owner addr.Address, limit int) ([]*rpc.RawRecord, error)
	GetBalance(ctx context.Context, owner addr.Address, a asset.Asset) (*rpc.Balance, error)
}

// Store persists classified history.
type Store interface {
	SaveTransactions(owner addr.Address, txs []tx.Transaction) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(owner addr.Address, txs []tx.Transaction) error

// SaveTransactions calls f.
func (f StoreFunc) SaveTransactions(owner addr.Address, txs []tx.Transaction) error {
	return f(owner, txs)
}

// Syncer keeps the history and balances of watched addresses up to date.
type Syncer struct {
	Ledger   Ledger
	Store    Store
	Assets   *asset.Registry
	Watch    []addr.Address
	Workers  int
	Limit    int
	Interval time.Duration

	// delay returns the wait before the given retry, nil for retryDelay.
	delay func(retry uint) time.Duration
}

// retryDelay is a randomized exponential delay in milliseconds, at least one second.
func retryDelay(retry uint) time.Duration {
	if retry > 13 {
		retry = 13
	}
	delay := time.Duration(rand.Intn(1<<retry)+1000) * time.Millisecond
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// SyncOnce fetches, classifies and stores the recent history of owner.
func (s *Syncer) SyncOnce(ctx context.Context, owner addr.Address) (int, error) {
	records, err := s.Ledger.GetRecentRecords(ctx, owner, s.Limit)
	if err != nil {
		return 0, err
	}

	txs := tx.ClassifyAll(records, owner, s.Assets, s.Workers)
	if err := s.Store.SaveTransactions(owner, txs); err != nil {
		return 0, err
	}

	return len(txs), nil
}

// syncLoop syncs owner every interval until ctx is done.
// Network failures are retried sooner, with growing delay.
func (s *Syncer) syncLoop(ctx context.Context, owner addr.Address) {
	defer mail.AlertIfErr()

	delay := s.delay
	if delay == nil {
		delay = retryDelay
	}

	retryTime := uint(0)
	short := addr.TruncateForDisplay(owner.String())

	for {
		n, err := s.SyncOnce(ctx, owner)

		wait := s.Interval
		switch {
		case err == nil:
			retryTime = 0
			log.Printf("Synced %d transactions of %s", n, short)
		case errors.Is(err, errs.ErrNetwork):
			retryTime++
			wait = delay(retryTime)
			log.Printf("Can not sync %s: %v", short, err)
			log.Printf("Delay for %d msecs and try to connect again. RetryTime=%d", wait.Milliseconds(), retryTime)
		default:
			log.Error.Errorf("Failed to sync %s: %v", short, err)
		}

		if !sleep(ctx, wait) {
			return
		}
	}
}

// RefreshBalances updates the cached balance of each given asset of owner,
// every configured asset when none is given.
func (s *Syncer) RefreshBalances(ctx context.Context, owner addr.Address, assetIDs ...string) error {
	assets := s.Assets.All()
	if len(assetIDs) > 0 {
		assets = assets[:0:0]
		for _, id := range assetIDs {
			a, ok := s.Assets.Get(id)
			if !ok {
				log.Error.Warnf("Unknown asset %q in balance refresh", id)
				continue
			}
			assets = append(assets, a)
		}
	}

	var firstErr error
	for _, a := range assets {
		b, err := s.Ledger.GetBalance(ctx, owner, a)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cache.UpdateBalance(owner, b.AssetID, b.Amount, b.Slot)
	}

	return firstErr
}

// refreshAll refreshes the given assets of every watched address.
func (s *Syncer) refreshAll(ctx context.Context, assetIDs ...string) {
	defer mail.AlertIfErr()

	for _, owner := range s.Watch {
		if err := s.RefreshBalances(ctx, owner, assetIDs...); err != nil {
			log.Printf("Can not refresh balances of %s: %v", addr.TruncateForDisplay(owner.String()), err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
