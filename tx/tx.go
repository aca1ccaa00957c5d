package tx

import (
	"sync"

	"acorn/addr"
	"acorn/asset"
	"acorn/metrics"
	"acorn/rpc"
)

// Direction of a transaction relative to the owner.
type Direction int

// Directions.
const (
	Unknown Direction = iota
	Send
	Receive
)

func (d Direction) String() string {
	switch d {
	case Send:
		return "send"
	case Receive:
		return "receive"
	default:
		return "unknown"
	}
}

// Status of a transaction.
type Status int

// Statuses. Pending is only used for in-flight submissions.
const (
	Confirmed Status = iota
	Pending
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "confirmed"
	}
}

// Transaction is the display-ready form of a ledger record.
type Transaction struct {
	Signature    string
	Direction    Direction
	AssetID      string
	Amount       uint64
	Counterparty string
	// Timestamp is unix milliseconds, 0 when the ledger has no block time.
	Timestamp int64
	Status    Status
}

// WithStatus returns a copy of t with the given status.
func (t Transaction) WithStatus(s Status) Transaction {
	t.Status = s
	return t
}

// Classify turns a raw record into a Transaction from the point of view of owner.
// It returns false for records without metadata or instruction list.
func Classify(raw *rpc.RawRecord, owner addr.Address, reg *asset.Registry) (*Transaction, bool) {
	if raw == nil || raw.Meta == nil || raw.Transaction.Message.Instructions == nil {
		return nil, false
	}

	t := &Transaction{
		Signature: raw.Signature(),
		AssetID:   reg.Native().ID,
		Direction: Unknown,
		Status:    Confirmed,
	}
	if raw.BlockTime != nil {
		t.Timestamp = *raw.BlockTime * 1000
	}
	if raw.Meta.Err != nil {
		t.Status = Failed
	}

	self := owner.String()

	// Only the first transfer counts.
	for _, ri := range raw.Transaction.Message.Instructions {
		switch ins := ParseInstruction(ri).(type) {
		case NativeTransfer:
			t.Amount = ins.Lamports
			if ins.From == self {
				t.Direction = Send
				t.Counterparty = ins.To
			} else {
				t.Direction = Receive
				t.Counterparty = ins.From
			}
			return t, true

		case TokenTransfer:
			a, ok := reg.ByMint(ins.Mint)
			if !ok {
				a = reg.DefaultToken()
			}
			t.AssetID = a.ID
			t.Amount = ins.Amount
			if ins.Authority == self || ins.From == self {
				t.Direction = Send
				t.Counterparty = ins.To
			} else {
				t.Direction = Receive
				t.Counterparty = ins.Authority
				if t.Counterparty == "" {
					t.Counterparty = ins.From
				}
			}
			return t, true
		}
	}

	return t, true
}

// ClassifyAll classifies records with up to workers goroutines.
// Output keeps input order; unparseable records are dropped.
func ClassifyAll(records []*rpc.RawRecord, owner addr.Address, reg *asset.Registry, workers int) []Transaction {
	if workers < 1 {
		workers = 1
	}

	results := make([]*Transaction, len(records))
	jobs := make(chan int)
	wg := sync.WaitGroup{}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if t, ok := Classify(records[i], owner, reg); ok {
					results[i] = t
				}
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	txs := make([]Transaction, 0, len(records))
	for _, t := range results {
		if t == nil {
			metrics.RecordsDropped.Inc()
			continue
		}
		metrics.RecordsClassified.WithLabelValues(t.Direction.String()).Inc()
		txs = append(txs, *t)
	}

	return txs
}
