package tasks

import (
	"context"
	"time"

	"acorn/config"
	"acorn/db"
	"acorn/log"
	"acorn/rpc"
	"acorn/transfer"
)

// Subscriber is satisfied by EventBus.Bus.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
}

// serverRefreshInterval is how often rpc server slots are refreshed.
const serverRefreshInterval = 30 * time.Second

// Run starts the history sync of every watched address.
// It returns once the goroutines are started.
func Run(ctx context.Context, client *rpc.Client) *Syncer {
	s := &Syncer{
		Ledger:   client,
		Store:    StoreFunc(db.SaveTransactions),
		Assets:   config.GetAssets(),
		Watch:    config.GetWatch(),
		Workers:  config.GetGoroutines(),
		Limit:    config.GetHistoryLimit(),
		Interval: config.GetSyncInterval(),
	}

	bestSlot := client.RefreshServers(ctx)
	log.Printf("rpc best slot = %d", bestSlot)
	go client.TraceBestSlot(ctx, serverRefreshInterval)

	s.Start(ctx)

	return s
}

// Start refreshes all balances once and starts one sync loop per watched address.
func (s *Syncer) Start(ctx context.Context) {
	log.Printf("Watching %d addresses", len(s.Watch))

	go s.refreshAll(ctx)

	for _, owner := range s.Watch {
		go s.syncLoop(ctx, owner)
	}
}

// Subscribe refreshes the watched balances of an asset whenever a transfer of it succeeds.
// The refresh runs on the publishing goroutine, so it is done before the transfer is reported finished.
func (s *Syncer) Subscribe(ctx context.Context, bus Subscriber) error {
	return bus.Subscribe(transfer.TopicRefreshBalances, func(assetID string) {
		s.refreshAll(ctx, assetID)
	})
}
