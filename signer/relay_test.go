package signer

import (
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"acorn/addr"
	"acorn/asset"
	"acorn/errs"
	"acorn/transfer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestRelay(t *testing.T, handler fasthttp.RequestHandler) *Relay {
	ln := fasthttputil.NewInmemoryListener()
	go fasthttp.Serve(ln, handler)
	t.Cleanup(func() { ln.Close() })

	return NewRelay("http://relay.test/",
		WithTimeout(5*time.Second),
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
	)
}

func usdcRequest() transfer.Request {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 5

	var to addr.Address
	copy(to[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))

	return transfer.Request{
		Recipient: to,
		Amount:    decimal.RequireFromString("12.5"),
		Units:     12_500_000,
		Asset:     asset.Defaults()[1],
	}
}

func reply(status int, body string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(body)
	}
}

func TestRelaySignsTransfer(t *testing.T) {
	var got relayRequest
	var path, method string

	r := newTestRelay(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		method = string(ctx.Method())
		require.NoError(t, json.Unmarshal(ctx.PostBody(), &got))
		ctx.SetBodyString(`{"signature":"4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZ"}`)
	})

	req := usdcRequest()
	sig, err := r.SignAndSubmit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZ", sig)

	assert.Equal(t, "/v1/transfers", path)
	assert.Equal(t, "POST", method)
	assert.Equal(t, relayRequest{
		Recipient: req.Recipient.String(),
		Asset:     asset.USDC,
		Mint:      asset.USDCMint,
		Amount:    "12500000",
	}, got)
}

func TestRelayErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{fasthttp.StatusConflict, `{"error":{"code":"user_cancelled","message":"dismissed"}}`, errs.ErrUserCancelled},
		{fasthttp.StatusBadRequest, `{"error":{"code":"unsupported_environment","message":"no platform authenticator"}}`, errs.ErrUnsupportedEnvironment},
		{fasthttp.StatusUnauthorized, `{"error":{"code":"credential_invalid","message":"unknown credential"}}`, errs.ErrCredentialInvalid},
		{fasthttp.StatusTooManyRequests, `{"error":{"code":"rate_limited","message":"slow down"}}`, errs.ErrNetwork},
		{fasthttp.StatusServiceUnavailable, `{"error":{"code":"unavailable","message":"maintenance"}}`, errs.ErrNetwork},
		{fasthttp.StatusBadGateway, `<html>bad gateway</html>`, errs.ErrNetwork},
		{fasthttp.StatusBadRequest, `{"error":{"code":"teapot","message":"?"}}`, errs.ErrUnknown},
		{fasthttp.StatusOK, `{}`, errs.ErrUnknown},
		{fasthttp.StatusOK, `not json`, errs.ErrUnknown},
	}

	for _, c := range cases {
		r := newTestRelay(t, reply(c.status, c.body))
		sig, err := r.SignAndSubmit(context.Background(), usdcRequest())
		assert.Empty(t, sig, c.body)
		assert.ErrorIs(t, err, c.want, c.body)
	}
}

func TestRelayCancel(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	r := newTestRelay(t, func(ctx *fasthttp.RequestCtx) {
		<-release
		ctx.SetBodyString(`{"signature":"late"}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.SignAndSubmit(ctx, usdcRequest())
	assert.ErrorIs(t, err, errs.ErrUserCancelled)
}

func TestRelayUnreachable(t *testing.T) {
	r := NewRelay("http://relay.test",
		WithDial(func(string) (net.Conn, error) { return nil, net.ErrClosed }),
	)

	_, err := r.SignAndSubmit(context.Background(), usdcRequest())
	assert.ErrorIs(t, err, errs.ErrNetwork)
}

func TestFunc(t *testing.T) {
	var s transfer.Signer = Func(func(_ context.Context, req transfer.Request) (string, error) {
		return "sig-" + req.Asset.ID, nil
	})

	sig, err := s.SignAndSubmit(context.Background(), usdcRequest())
	require.NoError(t, err)
	assert.Equal(t, "sig-USDC", sig)
}
