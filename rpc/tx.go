package rpc

import (
	"context"

	"acorn/addr"

	jsoniter "github.com/json-iterator/go"
)

// RawRecord is a transaction envelope as returned by 'getTransaction' with jsonParsed encoding.
type RawRecord struct {
	Slot        uint64         `json:"slot"`
	BlockTime   *int64         `json:"blockTime"`
	Meta        *RawMeta       `json:"meta"`
	Transaction RawTransaction `json:"transaction"`
}

// RawMeta is the execution metadata of a record.
type RawMeta struct {
	// Err is nil when the transaction executed successfully.
	Err         interface{} `json:"err"`
	Fee         uint64      `json:"fee"`
	LogMessages []string    `json:"logMessages"`
}

// RawTransaction is the signed part of a record.
type RawTransaction struct {
	Signatures []string   `json:"signatures"`
	Message    RawMessage `json:"message"`
}

// RawMessage holds the instruction list. A missing list decodes to nil.
type RawMessage struct {
	Instructions []RawInstruction `json:"instructions"`
}

// RawInstruction is one instruction. Parsed is an object for known programs,
// a plain string for memos, and absent for programs the node cannot parse.
type RawInstruction struct {
	Program   string              `json:"program"`
	ProgramID string              `json:"programId"`
	Parsed    jsoniter.RawMessage `json:"parsed"`
	Accounts  []string            `json:"accounts"`
	Data      string              `json:"data"`
}

// RawParsed is the object form of RawInstruction.Parsed.
type RawParsed struct {
	Type string          `json:"type"`
	Info RawTransferInfo `json:"info"`
}

// RawTransferInfo covers the fields of native and token transfer instructions.
type RawTransferInfo struct {
	Source            string          `json:"source"`
	Destination       string          `json:"destination"`
	Lamports          *uint64         `json:"lamports"`
	Authority         string          `json:"authority"`
	MultisigAuthority string          `json:"multisigAuthority"`
	Mint              string          `json:"mint"`
	Amount            string          `json:"amount"`
	TokenAmount       *RawTokenAmount `json:"tokenAmount"`
}

// RawTokenAmount is a token quantity in both smallest units and display form.
type RawTokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
	// UIAmount is null when the display amount does not fit a float.
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// Signature returns the first signature of the record, which identifies it.
func (r *RawRecord) Signature() string {
	if len(r.Transaction.Signatures) == 0 {
		return ""
	}
	return r.Transaction.Signatures[0]
}

// DecodeParsed decodes the object form of the parsed field.
func (i *RawInstruction) DecodeParsed() (*RawParsed, error) {
	p := RawParsed{}
	if err := json.Unmarshal(i.Parsed, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RawSignatureInfo is one entry of 'getSignaturesForAddress'.
type RawSignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// SignaturesResponse is the response of 'getSignaturesForAddress'.
type SignaturesResponse struct {
	jsonRPCResponse
	Result []RawSignatureInfo `json:"result"`
}

// TransactionResponse is the response of 'getTransaction'.
type TransactionResponse struct {
	jsonRPCResponse
	Result *RawRecord `json:"result"`
}

// GetSignatures returns the newest signatures involving owner, newest first.
func (c *Client) GetSignatures(ctx context.Context, owner addr.Address, limit int) ([]RawSignatureInfo, error) {
	params := []interface{}{
		owner.String(),
		map[string]interface{}{"limit": limit, "commitment": "confirmed"},
	}

	respData := SignaturesResponse{}
	if err := c.call(ctx, "getSignaturesForAddress", params, &respData); err != nil {
		return nil, err
	}

	return respData.Result, nil
}

// GetRecord returns the record of the given signature, nil if the node does not have it yet.
func (c *Client) GetRecord(ctx context.Context, signature string) (*RawRecord, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	respData := TransactionResponse{}
	if err := c.call(ctx, "getTransaction", params, &respData); err != nil {
		return nil, err
	}

	return respData.Result, nil
}

// GetRecentRecords returns up to limit raw records involving owner, newest first.
// Records are downloaded concurrently; any failure fails the page.
func (c *Client) GetRecentRecords(ctx context.Context, owner addr.Address, limit int) ([]*RawRecord, error) {
	sigs, err := c.GetSignatures(ctx, owner, limit)
	if err != nil {
		return nil, err
	}

	type fetched struct {
		index  int
		record *RawRecord
		err    error
	}

	ch := make(chan fetched, len(sigs))
	sem := make(chan struct{}, c.maxInflight)

	for i, s := range sigs {
		go func(i int, sig string) {
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := c.GetRecord(ctx, sig)
			ch <- fetched{index: i, record: record, err: err}
		}(i, s.Signature)
	}

	records := make([]*RawRecord, len(sigs))
	var firstErr error

	for range sigs {
		f := <-ch
		if f.err != nil && firstErr == nil {
			firstErr = f.err
		}
		records[f.index] = f.record
	}

	if firstErr != nil {
		return nil, firstErr
	}

	result := make([]*RawRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			result = append(result, r)
		}
	}

	return result, nil
}
