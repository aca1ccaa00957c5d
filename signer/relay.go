package signer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"acorn/errs"
	"acorn/log"
	"acorn/metrics"
	"acorn/transfer"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	transfersPath = "/v1/transfers"

	// The relay waits on a human, so allow much more than a ledger query.
	defaultTimeout = 2 * time.Minute
)

// Relay error codes.
const (
	CodeUserCancelled          = "user_cancelled"
	CodeUnsupportedEnvironment = "unsupported_environment"
	CodeCredentialInvalid      = "credential_invalid"
	CodeRateLimited            = "rate_limited"
	CodeUnavailable            = "unavailable"
)

var errNoSignature = errors.New("relay answered without signature")

// Func adapts a function to transfer.Signer.
type Func func(ctx context.Context, req transfer.Request) (string, error)

// SignAndSubmit calls f.
func (f Func) SignAndSubmit(ctx context.Context, req transfer.Request) (string, error) {
	return f(ctx, req)
}

// Relay submits transfers to the signing relay, which runs the user's
// confirmation ceremony and broadcasts the signed transaction.
type Relay struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithTimeout bounds one ceremony.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithDial replaces the dialer.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(r *Relay) {
		r.http.Dial = dial
	}
}

// NewRelay creates a relay client for baseURL.
func NewRelay(baseURL string, opts ...Option) *Relay {
	r := &Relay{
		url:     strings.TrimRight(baseURL, "/") + transfersPath,
		http:    &fasthttp.Client{Name: "acorn"},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type relayRequest struct {
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Mint      string `json:"mint,omitempty"`
	Amount    string `json:"amount"`
}

type relayResponse struct {
	Signature string      `json:"signature"`
	Error     *relayError `json:"error"`
}

type relayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SignAndSubmit implements transfer.Signer.
func (r *Relay) SignAndSubmit(ctx context.Context, req transfer.Request) (string, error) {
	sig, err := r.submit(ctx, req)
	if err != nil {
		metrics.RelayErrors.WithLabelValues(errs.KindOf(err).String()).Inc()
		log.Error.Warnf("Relay submission failed: %v", err)
		return "", err
	}
	return sig, nil
}

func (r *Relay) submit(ctx context.Context, req transfer.Request) (string, error) {
	body, err := json.Marshal(relayRequest{
		Recipient: req.Recipient.String(),
		Asset:     req.Asset.ID,
		Mint:      req.Asset.Mint,
		Amount:    strconv.FormatUint(req.Units, 10),
	})
	if err != nil {
		return "", err
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(r.url)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(body)

	if err := r.do(ctx, httpReq, httpResp); err != nil {
		return "", err
	}

	code := httpResp.StatusCode()
	resp := relayResponse{}
	decodeErr := json.Unmarshal(httpResp.Body(), &resp)

	if resp.Error != nil {
		return "", classify(resp.Error)
	}

	switch {
	case code == fasthttp.StatusTooManyRequests || code >= fasthttp.StatusInternalServerError:
		return "", fmt.Errorf("%w: relay status %d", errs.ErrNetwork, code)
	case code != fasthttp.StatusOK:
		return "", fmt.Errorf("%w: relay status %d", errs.ErrUnknown, code)
	case decodeErr != nil:
		return "", fmt.Errorf("%w: %v", errs.ErrUnknown, decodeErr)
	case resp.Signature == "":
		return "", fmt.Errorf("%w: %v", errs.ErrUnknown, errNoSignature)
	}

	return resp.Signature, nil
}

// do runs the request and gives up when ctx is done.
func (r *Relay) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan error, 1)
	reqCopy := fasthttp.AcquireRequest()
	req.CopyTo(reqCopy)
	respCopy := fasthttp.AcquireResponse()

	go func() {
		done <- r.http.DoDeadline(reqCopy, respCopy, deadline)
	}()

	select {
	case err := <-done:
		defer fasthttp.ReleaseRequest(reqCopy)
		defer fasthttp.ReleaseResponse(respCopy)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
		}
		respCopy.CopyTo(resp)
		return nil

	case <-ctx.Done():
		// The request goroutine still owns the copies; they are left to the GC.
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%w: %v", errs.ErrUserCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: %v", errs.ErrNetwork, ctx.Err())
	}
}

func classify(e *relayError) error {
	var kind error
	switch e.Code {
	case CodeUserCancelled:
		kind = errs.ErrUserCancelled
	case CodeUnsupportedEnvironment:
		kind = errs.ErrUnsupportedEnvironment
	case CodeCredentialInvalid:
		kind = errs.ErrCredentialInvalid
	case CodeRateLimited, CodeUnavailable:
		kind = errs.ErrNetwork
	default:
		kind = errs.ErrUnknown
	}
	return fmt.Errorf("%w: %s: %s", kind, e.Code, e.Message)
}
