package rpc

import (
	"context"
	"crypto/ed25519"
	"net"
	"sync"
	"testing"
	"time"

	"acorn/addr"
	"acorn/asset"
	"acorn/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type rpcCall struct {
	Host   string
	Method string
	Params []interface{}
}

// ledgerStub answers JSON-RPC calls per method and records them.
type ledgerStub struct {
	mu      sync.Mutex
	calls   []rpcCall
	results map[string]string
	// status forces an http status per host.
	status map[string]int
}

func (s *ledgerStub) handle(ctx *fasthttp.RequestCtx) {
	req := jsonRPCRequest{}
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	host := string(ctx.Host())

	s.mu.Lock()
	s.calls = append(s.calls, rpcCall{Host: host, Method: req.Method, Params: req.Params})
	code, forced := s.status[host]
	result, ok := s.results[req.Method]
	if req.Method == "getTransaction" {
		result, ok = s.results["getTransaction:"+req.Params[0].(string)]
	}
	s.mu.Unlock()

	if forced {
		ctx.SetStatusCode(code)
		return
	}

	ctx.SetContentType("application/json")
	if !ok {
		ctx.SetBodyString(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`)
		return
	}
	ctx.SetBodyString(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`)
}

func (s *ledgerStub) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m []string
	for _, c := range s.calls {
		m = append(m, c.Method)
	}
	return m
}

func newTestClient(t *testing.T, stub *ledgerStub, urls ...string) *Client {
	ln := fasthttputil.NewInmemoryListener()
	go fasthttp.Serve(ln, stub.handle)
	t.Cleanup(func() { ln.Close() })

	if len(urls) == 0 {
		urls = []string{"http://ledger.test"}
	}

	return NewClient(urls,
		WithTimeout(2*time.Second),
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
	)
}

func owner() addr.Address {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42

	var a addr.Address
	copy(a[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return a
}

func TestGetNativeBalance(t *testing.T) {
	stub := &ledgerStub{results: map[string]string{
		"getBalance": `{"context":{"slot":311},"value":1500000000}`,
	}}
	c := newTestClient(t, stub)

	b, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), b.Amount)
	assert.Equal(t, uint64(311), b.Slot)
	assert.Equal(t, asset.SOL, b.AssetID)

	require.Len(t, stub.calls, 1)
	assert.Equal(t, owner().String(), stub.calls[0].Params[0])
}

func TestGetTokenBalanceSumsAccounts(t *testing.T) {
	stub := &ledgerStub{results: map[string]string{
		"getTokenAccountsByOwner": `{"context":{"slot":9},"value":[
			{"pubkey":"A","account":{"data":{"parsed":{"info":{"mint":"m","tokenAmount":{"amount":"100000000","decimals":6}}}}}},
			{"pubkey":"B","account":{"data":{"parsed":{"info":{"mint":"m","tokenAmount":{"amount":"250","decimals":6}}}}}}
		]}`,
	}}
	c := newTestClient(t, stub)

	b, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_250), b.Amount)

	filter := stub.calls[0].Params[1].(map[string]interface{})
	assert.Equal(t, asset.USDCMint, filter["mint"])
}

func TestMalformedTokenAmount(t *testing.T) {
	stub := &ledgerStub{results: map[string]string{
		"getTokenAccountsByOwner": `{"context":{"slot":9},"value":[{"pubkey":"A","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"lots"}}}}}}]}`,
	}}
	c := newTestClient(t, stub)

	_, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[1])
	assert.ErrorIs(t, err, errs.ErrNetwork)
}

func TestRPCErrorIsNetworkError(t *testing.T) {
	c := newTestClient(t, &ledgerStub{})

	_, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[0])
	assert.ErrorIs(t, err, errs.ErrNetwork)
	assert.Equal(t, errs.KindNetwork, errs.KindOf(err))
}

func TestRateLimitedServerIsSkipped(t *testing.T) {
	stub := &ledgerStub{
		results: map[string]string{"getBalance": `{"context":{"slot":1},"value":7}`},
		status:  map[string]int{"busy.test": fasthttp.StatusTooManyRequests},
	}
	c := newTestClient(t, stub, "http://busy.test", "http://calm.test")

	for i := 0; i < 5; i++ {
		b, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[0])
		require.NoError(t, err)
		assert.Equal(t, uint64(7), b.Amount)
	}

	for _, s := range c.Servers() {
		if s.URL == "http://calm.test" {
			assert.Equal(t, int64(0), s.Slot)
		} else {
			assert.True(t, s.Slot == 0 || s.Slot == -1)
		}
	}
}

func TestAllServersDown(t *testing.T) {
	stub := &ledgerStub{status: map[string]int{
		"a.test": fasthttp.StatusServiceUnavailable,
		"b.test": fasthttp.StatusTooManyRequests,
	}}
	c := newTestClient(t, stub, "http://a.test", "http://b.test")

	_, err := c.GetBalance(context.Background(), owner(), asset.Defaults()[0])
	assert.ErrorIs(t, err, errs.ErrNetwork)

	for _, s := range c.Servers() {
		assert.Equal(t, int64(-1), s.Slot)
	}
}

func TestRefreshServers(t *testing.T) {
	stub := &ledgerStub{
		results: map[string]string{"getSlot": `1234`},
		status:  map[string]int{"down.test": fasthttp.StatusBadGateway},
	}
	c := newTestClient(t, stub, "http://up.test", "http://down.test")

	assert.Equal(t, int64(1234), c.RefreshServers(context.Background()))
	assert.Equal(t, int64(1234), c.BestSlot())
	assert.Equal(t, []ServerInfo{{URL: "http://down.test", Slot: -1}, {URL: "http://up.test", Slot: 1234}}, c.Servers())

	url, ok := c.getServer(0)
	require.True(t, ok)
	assert.Equal(t, "http://up.test", url)
}

func TestGetRecentRecords(t *testing.T) {
	stub := &ledgerStub{results: map[string]string{
		"getSignaturesForAddress": `[{"signature":"s1","slot":3},{"signature":"s2","slot":2},{"signature":"s3","slot":1}]`,
		"getTransaction:s1": `{"slot":3,"blockTime":1700000000,"meta":{"err":null,"fee":5000},"transaction":{"signatures":["s1"],"message":{"instructions":[
			{"program":"system","programId":"11111111111111111111111111111111","parsed":{"type":"transfer","info":{"source":"a","destination":"b","lamports":10}}}]}}}`,
		"getTransaction:s2": `null`,
		"getTransaction:s3": `{"slot":1,"blockTime":1690000000,"meta":{"err":{"InstructionError":[0,"Custom"]}},"transaction":{"signatures":["s3"],"message":{"instructions":[
			{"program":"spl-memo","programId":"MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr","parsed":"hello"}]}}}`,
	}}
	c := newTestClient(t, stub)

	records, err := c.GetRecentRecords(context.Background(), owner(), 3)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "s1", records[0].Signature())
	require.NotNil(t, records[0].BlockTime)
	assert.Equal(t, int64(1700000000), *records[0].BlockTime)
	assert.Nil(t, records[0].Meta.Err)

	p, err := records[0].Transaction.Message.Instructions[0].DecodeParsed()
	require.NoError(t, err)
	assert.Equal(t, "transfer", p.Type)
	require.NotNil(t, p.Info.Lamports)
	assert.Equal(t, uint64(10), *p.Info.Lamports)

	assert.Equal(t, "s3", records[1].Signature())
	assert.NotNil(t, records[1].Meta.Err)
	_, err = records[1].Transaction.Message.Instructions[0].DecodeParsed()
	assert.Error(t, err)

	assert.Equal(t, "getSignaturesForAddress", stub.methods()[0])
}

func TestGetRecentRecordsFailsThePage(t *testing.T) {
	stub := &ledgerStub{results: map[string]string{
		"getSignaturesForAddress": `[{"signature":"s1"},{"signature":"missing"}]`,
		"getTransaction:s1":       `{"slot":3,"meta":{},"transaction":{"signatures":["s1"],"message":{"instructions":[]}}}`,
	}}
	c := newTestClient(t, stub)

	_, err := c.GetRecentRecords(context.Background(), owner(), 2)
	assert.ErrorIs(t, err, errs.ErrNetwork)
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, &ledgerStub{results: map[string]string{"getBalance": `{"context":{"slot":1},"value":1}`}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetBalance(ctx, owner(), asset.Defaults()[0])
	assert.ErrorIs(t, err, errs.ErrNetwork)
}
