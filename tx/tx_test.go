package tx

import (
	"crypto/ed25519"
	"fmt"
	"testing"

	"acorn/addr"
	"acorn/asset"
	"acorn/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reg = asset.MustRegistry(append(asset.Defaults(), asset.Asset{
	ID: "BONK", Symbol: "BONK", Name: "Bonk", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5,
}))

func testAddress(i byte) addr.Address {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = i

	var a addr.Address
	copy(a[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return a
}

var (
	owner = testAddress(1)
	peer  = testAddress(2)
	other = testAddress(3)
)

func native(from, to addr.Address, lamports uint64) rpc.RawInstruction {
	return rpc.RawInstruction{
		Program:   ProgramSystem,
		ProgramID: "11111111111111111111111111111111",
		Parsed: []byte(fmt.Sprintf(`{"type":"transfer","info":{"source":%q,"destination":%q,"lamports":%d}}`,
			from, to, lamports)),
	}
}

func tokenChecked(src, dst, authority string, mint string, units string) rpc.RawInstruction {
	return rpc.RawInstruction{
		Program:   ProgramToken,
		ProgramID: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		Parsed: []byte(fmt.Sprintf(`{"type":"transferChecked","info":{"source":%q,"destination":%q,"authority":%q,"mint":%q,"tokenAmount":{"amount":%q,"decimals":6,"uiAmountString":"1.5"}}}`,
			src, dst, authority, mint, units)),
	}
}

func memo(text string) rpc.RawInstruction {
	return rpc.RawInstruction{
		Program:   "spl-memo",
		ProgramID: "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr",
		Parsed:    []byte(fmt.Sprintf("%q", text)),
	}
}

func record(sig string, failed bool, ins ...rpc.RawInstruction) *rpc.RawRecord {
	bt := int64(1_700_000_000)
	meta := &rpc.RawMeta{Fee: 5000}
	if failed {
		meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	}
	if ins == nil {
		ins = []rpc.RawInstruction{}
	}
	return &rpc.RawRecord{
		Slot:      100,
		BlockTime: &bt,
		Meta:      meta,
		Transaction: rpc.RawTransaction{
			Signatures: []string{sig},
			Message:    rpc.RawMessage{Instructions: ins},
		},
	}
}

func TestClassifyNativeSend(t *testing.T) {
	got, ok := Classify(record("s1", false, native(owner, peer, 2500)), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Transaction{
		Signature:    "s1",
		Direction:    Send,
		AssetID:      asset.SOL,
		Amount:       2500,
		Counterparty: peer.String(),
		Timestamp:    1_700_000_000_000,
		Status:       Confirmed,
	}, *got)
}

func TestClassifyNativeReceive(t *testing.T) {
	got, ok := Classify(record("s1", false, native(peer, owner, 7)), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Receive, got.Direction)
	assert.Equal(t, peer.String(), got.Counterparty)
	assert.Equal(t, uint64(7), got.Amount)
}

func TestClassifyTokenTransfers(t *testing.T) {
	got, ok := Classify(record("t1", false, tokenChecked("ownerATA", "peerATA", owner.String(), asset.USDCMint, "1500000")), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Send, got.Direction)
	assert.Equal(t, asset.USDC, got.AssetID)
	assert.Equal(t, uint64(1_500_000), got.Amount)
	assert.Equal(t, "peerATA", got.Counterparty)

	got, ok = Classify(record("t2", false, tokenChecked("peerATA", "ownerATA", peer.String(), reg.All()[2].Mint, "42")), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Receive, got.Direction)
	assert.Equal(t, "BONK", got.AssetID)
	assert.Equal(t, peer.String(), got.Counterparty)
}

func TestClassifyPlainTokenTransfer(t *testing.T) {
	ins := rpc.RawInstruction{
		Program: ProgramToken,
		Parsed:  []byte(fmt.Sprintf(`{"type":"transfer","info":{"source":"a","destination":"b","authority":%q,"amount":"900"}}`, other)),
	}

	got, ok := Classify(record("t3", false, ins), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Receive, got.Direction)
	assert.Equal(t, reg.DefaultToken().ID, got.AssetID)
	assert.Equal(t, uint64(900), got.Amount)
	assert.Equal(t, other.String(), got.Counterparty)
}

func TestClassifyFirstTransferWins(t *testing.T) {
	got, ok := Classify(record("m", false,
		memo("rent"),
		native(peer, owner, 1),
		native(owner, other, 99),
	), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Receive, got.Direction)
	assert.Equal(t, uint64(1), got.Amount)
}

func TestClassifyUnknownIsSurfaced(t *testing.T) {
	got, ok := Classify(record("u", false, memo("hello"), rpc.RawInstruction{Program: "vote"}), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Unknown, got.Direction)
	assert.Zero(t, got.Amount)
	assert.Empty(t, got.Counterparty)
	assert.Equal(t, asset.SOL, got.AssetID)

	got, ok = Classify(record("empty", false), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Unknown, got.Direction)
}

func TestClassifyFailedStatus(t *testing.T) {
	got, ok := Classify(record("f", true, native(owner, peer, 1)), owner, reg)
	require.True(t, ok)
	assert.Equal(t, Failed, got.Status)
}

func TestClassifyUnparseable(t *testing.T) {
	r := record("x", false, native(owner, peer, 1))
	r.Meta = nil
	_, ok := Classify(r, owner, reg)
	assert.False(t, ok)

	r = record("y", false)
	r.Transaction.Message.Instructions = nil
	_, ok = Classify(r, owner, reg)
	assert.False(t, ok)

	_, ok = Classify(nil, owner, reg)
	assert.False(t, ok)
}

func TestClassifyMissingBlockTime(t *testing.T) {
	r := record("x", false, native(owner, peer, 1))
	r.BlockTime = nil
	got, ok := Classify(r, owner, reg)
	require.True(t, ok)
	assert.Zero(t, got.Timestamp)
}

func TestWithStatus(t *testing.T) {
	orig := Transaction{Signature: "s", Status: Pending}
	next := orig.WithStatus(Confirmed)
	assert.Equal(t, Pending, orig.Status)
	assert.Equal(t, Confirmed, next.Status)
	assert.Equal(t, "s", next.Signature)
}

func TestParseInstruction(t *testing.T) {
	assert.Equal(t, Other{Program: "spl-memo"}, ParseInstruction(memo("hi")))
	assert.Equal(t, Other{Program: "vote"}, ParseInstruction(rpc.RawInstruction{Program: "vote"}))
	assert.Equal(t, NativeTransfer{From: owner.String(), To: peer.String(), Lamports: 3}, ParseInstruction(native(owner, peer, 3)))

	bad := rpc.RawInstruction{Program: ProgramToken, Parsed: []byte(`{"type":"transfer","info":{"amount":"-1"}}`)}
	assert.Equal(t, Other{Program: ProgramToken}, ParseInstruction(bad))

	alloc := rpc.RawInstruction{Program: ProgramSystem, Parsed: []byte(`{"type":"allocate","info":{"space":10}}`)}
	assert.Equal(t, Other{Program: ProgramSystem}, ParseInstruction(alloc))

	tt := ParseInstruction(tokenChecked("a", "b", "c", asset.USDCMint, "10")).(TokenTransfer)
	assert.Equal(t, "1.5", tt.UIAmount)
	assert.Equal(t, uint64(10), tt.Amount)
}

func TestParseTokenAmountFallsBackToUIAmount(t *testing.T) {
	ins := rpc.RawInstruction{
		Program: ProgramToken,
		Parsed: []byte(`{"type":"transferChecked","info":{"source":"a","destination":"b","authority":"c",` +
			`"mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","tokenAmount":{"decimals":6,"uiAmount":2.5}}}`),
	}
	tt, ok := ParseInstruction(ins).(TokenTransfer)
	require.True(t, ok)
	assert.Equal(t, uint64(2_500_000), tt.Amount)

	noAmount := rpc.RawInstruction{
		Program: ProgramToken,
		Parsed:  []byte(`{"type":"transferChecked","info":{"source":"a","destination":"b","tokenAmount":{"decimals":6,"uiAmount":null}}}`),
	}
	assert.Equal(t, Other{Program: ProgramToken}, ParseInstruction(noAmount))

	negative := rpc.RawInstruction{
		Program: ProgramToken,
		Parsed:  []byte(`{"type":"transferChecked","info":{"source":"a","destination":"b","tokenAmount":{"decimals":6,"uiAmount":-1}}}`),
	}
	assert.Equal(t, Other{Program: ProgramToken}, ParseInstruction(negative))
}

func TestClassifyAllKeepsOrder(t *testing.T) {
	var records []*rpc.RawRecord
	for i := 0; i < 50; i++ {
		records = append(records, record(fmt.Sprintf("s%d", i), false, native(owner, peer, uint64(i))))
	}
	broken := record("broken", false)
	broken.Meta = nil
	records = append(records[:10], append([]*rpc.RawRecord{broken}, records[10:]...)...)

	txs := ClassifyAll(records, owner, reg, 4)
	require.Len(t, txs, 50)
	for i, tx := range txs {
		assert.Equal(t, fmt.Sprintf("s%d", i), tx.Signature)
		assert.Equal(t, uint64(i), tx.Amount)
	}

	assert.Empty(t, ClassifyAll(nil, owner, reg, 0))
}
