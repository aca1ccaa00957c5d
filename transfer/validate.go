package transfer

import (
	"strings"

	"acorn/addr"
	"acorn/amount"
	"acorn/asset"
	"acorn/errs"

	"github.com/shopspring/decimal"
)

// Request is a transfer that passed validation.
type Request struct {
	Recipient addr.Address
	Amount    decimal.Decimal
	// Units is Amount in the asset's smallest unit.
	Units uint64
	Asset asset.Asset
}

// Validate decides whether a transfer of amt to recipient is admissible against
// the available balance, in smallest units. The first failing check wins:
// recipient present, recipient decodes, amount positive, amount covered.
func Validate(recipient string, amt decimal.Decimal, available uint64, a asset.Asset) (*Request, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, errs.ErrRecipientRequired
	}

	to, err := addr.Decode(recipient)
	if err != nil {
		return nil, errs.ErrInvalidRecipient
	}

	if amt.Sign() <= 0 {
		return nil, errs.ErrAmountMustBePositive
	}

	units, err := amount.ToSmallestUnits(amt, a.Decimals)
	switch {
	case err == amount.ErrOverflow:
		return nil, errs.ErrInsufficientBalance
	case err != nil:
		return nil, errs.ErrAmountMustBePositive
	case units == 0:
		// Dust below one smallest unit.
		return nil, errs.ErrAmountMustBePositive
	}

	if units > available {
		return nil, errs.ErrInsufficientBalance
	}

	return &Request{
		Recipient: to,
		Amount:    amt,
		Units:     units,
		Asset:     a,
	}, nil
}

// ValidateText is Validate for raw user input.
// Amount text that is not a number fails as ErrAmountMustBePositive.
func ValidateText(recipient, amountText string, available uint64, a asset.Asset) (*Request, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, errs.ErrRecipientRequired
	}
	if !addr.Valid(recipient) {
		return nil, errs.ErrInvalidRecipient
	}

	amt, err := amount.Parse(amountText)
	if err != nil {
		return nil, errs.ErrAmountMustBePositive
	}

	return Validate(recipient, amt, available, a)
}
