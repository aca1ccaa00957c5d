package tx

import (
	"strconv"

	"acorn/amount"
	"acorn/rpc"
)

// Program names as reported by jsonParsed encoding.
const (
	ProgramSystem = "system"
	ProgramToken  = "spl-token"
)

// Instruction is one of NativeTransfer, TokenTransfer or Other.
type Instruction interface {
	instruction()
}

// NativeTransfer moves native coin between two accounts.
type NativeTransfer struct {
	From     string
	To       string
	Lamports uint64
}

// TokenTransfer moves a fungible token between two token accounts.
// Amount is in smallest units; Mint is empty for plain 'transfer' instructions.
type TokenTransfer struct {
	From      string
	To        string
	Authority string
	Mint      string
	Amount    uint64
	// UIAmount is the display amount when the node reports one.
	UIAmount string
}

// Other is any instruction that is not a recognized transfer.
type Other struct {
	Program string
}

func (NativeTransfer) instruction() {}
func (TokenTransfer) instruction()  {}
func (Other) instruction()          {}

// ParseInstruction turns a raw instruction into its variant.
func ParseInstruction(raw rpc.RawInstruction) Instruction {
	other := Other{Program: raw.Program}
	if len(raw.Parsed) == 0 {
		return other
	}

	p, err := raw.DecodeParsed()
	if err != nil {
		// Memo-like programs put a plain string in the parsed field.
		return other
	}

	switch raw.Program {
	case ProgramSystem:
		if p.Type != "transfer" || p.Info.Lamports == nil {
			return other
		}
		return NativeTransfer{
			From:     p.Info.Source,
			To:       p.Info.Destination,
			Lamports: *p.Info.Lamports,
		}

	case ProgramToken:
		if p.Type != "transfer" && p.Type != "transferChecked" {
			return other
		}

		t := TokenTransfer{
			From:      p.Info.Source,
			To:        p.Info.Destination,
			Authority: p.Info.Authority,
			Mint:      p.Info.Mint,
		}
		if t.Authority == "" {
			t.Authority = p.Info.MultisigAuthority
		}

		switch {
		case p.Info.Amount != "":
			n, err := strconv.ParseUint(p.Info.Amount, 10, 64)
			if err != nil {
				return other
			}
			t.Amount = n
		case p.Info.TokenAmount != nil:
			ta := p.Info.TokenAmount
			t.UIAmount = ta.UIAmountString
			n, ok := tokenUnits(ta)
			if !ok {
				return other
			}
			t.Amount = n
		default:
			return other
		}

		return t
	}

	return other
}

// tokenUnits reads the integer amount, falling back to the display amount
// for nodes that only report it as a number.
func tokenUnits(ta *rpc.RawTokenAmount) (uint64, bool) {
	if ta.Amount != "" {
		n, err := strconv.ParseUint(ta.Amount, 10, 64)
		return n, err == nil
	}

	if ta.UIAmount == nil {
		return 0, false
	}

	d, err := amount.FromFloat(*ta.UIAmount)
	if err != nil {
		return 0, false
	}

	n, err := amount.ToSmallestUnits(d, ta.Decimals)
	return n, err == nil
}
