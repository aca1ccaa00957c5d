package rpc

import (
	"context"
	"fmt"
	"strconv"

	"acorn/addr"
	"acorn/asset"
	"acorn/errs"
)

// Balance is an amount in smallest units, as of Slot.
type Balance struct {
	AssetID string
	Amount  uint64
	Slot    uint64
}

// RawContext is the context part of slot-stamped results.
type RawContext struct {
	Slot uint64 `json:"slot"`
}

// BalanceResponse is the response of 'getBalance'.
type BalanceResponse struct {
	jsonRPCResponse
	Result *struct {
		Context RawContext `json:"context"`
		Value   uint64     `json:"value"`
	} `json:"result"`
}

// RawTokenAccount is one entry of 'getTokenAccountsByOwner'.
type RawTokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					Mint        string         `json:"mint"`
					Owner       string         `json:"owner"`
					TokenAmount RawTokenAmount `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// TokenAccountsResponse is the response of 'getTokenAccountsByOwner'.
type TokenAccountsResponse struct {
	jsonRPCResponse
	Result *struct {
		Context RawContext        `json:"context"`
		Value   []RawTokenAccount `json:"value"`
	} `json:"result"`
}

// GetBalance returns the balance of owner in the given asset.
// Token balances are summed over all token accounts of the asset's mint.
func (c *Client) GetBalance(ctx context.Context, owner addr.Address, a asset.Asset) (*Balance, error) {
	if a.Native {
		return c.getNativeBalance(ctx, owner, a)
	}
	return c.getTokenBalance(ctx, owner, a)
}

func (c *Client) getNativeBalance(ctx context.Context, owner addr.Address, a asset.Asset) (*Balance, error) {
	const method = "getBalance"
	params := []interface{}{
		owner.String(),
		map[string]interface{}{"commitment": "confirmed"},
	}

	respData := BalanceResponse{}
	if err := c.call(ctx, method, params, &respData); err != nil {
		return nil, err
	}
	if respData.Result == nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrNetwork, method, errEmptyResult)
	}

	return &Balance{
		AssetID: a.ID,
		Amount:  respData.Result.Value,
		Slot:    respData.Result.Context.Slot,
	}, nil
}

func (c *Client) getTokenBalance(ctx context.Context, owner addr.Address, a asset.Asset) (*Balance, error) {
	const method = "getTokenAccountsByOwner"
	params := []interface{}{
		owner.String(),
		map[string]interface{}{"mint": a.Mint},
		map[string]interface{}{"encoding": "jsonParsed", "commitment": "confirmed"},
	}

	respData := TokenAccountsResponse{}
	if err := c.call(ctx, method, params, &respData); err != nil {
		return nil, err
	}
	if respData.Result == nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrNetwork, method, errEmptyResult)
	}

	total := uint64(0)
	for _, account := range respData.Result.Value {
		amount, err := strconv.ParseUint(account.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v %q", errs.ErrNetwork, method, errBadAmount, account.Pubkey)
		}
		total += amount
	}

	return &Balance{
		AssetID: a.ID,
		Amount:  total,
		Slot:    respData.Result.Context.Slot,
	}, nil
}
