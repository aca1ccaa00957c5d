package cache

import (
	"sync"

	"acorn/addr"
)

// BalanceCacheItem is the last known balance of an address asset.
type BalanceCacheItem struct {
	Amount uint64
	// This balance is 'up to date' till 'Slot'.
	Slot uint64
}

type balanceKey struct {
	address addr.Address
	assetID string
}

var (
	balanceCache     = make(map[balanceKey]BalanceCacheItem)
	balanceCacheLock sync.Mutex
)

// GetBalance returns the cached balance of the asset held by address.
func GetBalance(address addr.Address, assetID string) (uint64, uint64, bool) {
	balanceCacheLock.Lock()
	defer balanceCacheLock.Unlock()

	rec, ok := balanceCache[balanceKey{address, assetID}]
	if !ok {
		return 0, 0, false
	}

	return rec.Amount, rec.Slot, true
}

// UpdateBalance updates or sets the balance of the asset held by address.
// A balance observed at an older slot than the cached one is ignored.
func UpdateBalance(address addr.Address, assetID string, amount uint64, slot uint64) bool {
	balanceCacheLock.Lock()
	defer balanceCacheLock.Unlock()

	key := balanceKey{address, assetID}
	if rec, ok := balanceCache[key]; ok {
		if rec.Slot > slot {
			return false
		}
	}

	balanceCache[key] = BalanceCacheItem{
		Amount: amount,
		Slot:   slot,
	}

	return true
}

// Balances returns a copy of all cached balances of address, keyed by asset id.
func Balances(address addr.Address) map[string]BalanceCacheItem {
	balanceCacheLock.Lock()
	defer balanceCacheLock.Unlock()

	result := make(map[string]BalanceCacheItem)
	for k, v := range balanceCache {
		if k.address == address {
			result[k.assetID] = v
		}
	}
	return result
}

// Reset drops every cached balance.
func Reset() {
	balanceCacheLock.Lock()
	defer balanceCacheLock.Unlock()

	balanceCache = make(map[balanceKey]BalanceCacheItem)
}
