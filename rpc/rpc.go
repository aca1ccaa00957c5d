package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"acorn/errs"
	"acorn/log"
	"acorn/metrics"

	eParser "github.com/go-errors/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxInflight = 8
)

var (
	errRateLimited  = errors.New("rate limited")
	errNoServer     = errors.New("no available rpc server")
	errEmptyResult  = errors.New("empty result")
	errBadStatus    = errors.New("unexpected http status")
	errBadAmount    = errors.New("malformed token amount")
	errNoServerConf = errors.New("no rpc server configured")
)

// Client queries the ledger through a pool of JSON-RPC servers.
type Client struct {
	http        *fasthttp.Client
	timeout     time.Duration
	maxInflight int

	// servers stores all rpc urls with their slot.
	// Unaccessable servers are set to -1 until the next refresh.
	servers map[string]int64
	sLock   sync.Mutex

	// bestSlot is the highest slot seen on any server.
	bestSlot atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDial replaces the dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) {
		c.http.Dial = dial
	}
}

// WithMaxInflight bounds concurrent record downloads.
func WithMaxInflight(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxInflight = n
		}
	}
}

// NewClient creates a client over the given rpc urls.
func NewClient(urls []string, opts ...Option) *Client {
	c := &Client{
		http:        &fasthttp.Client{Name: "acorn"},
		timeout:     defaultTimeout,
		maxInflight: defaultMaxInflight,
		servers:     make(map[string]int64),
	}

	for _, url := range urls {
		c.servers[url] = 0
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// jsonRPCResponse is embedded by every typed response.
type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Error   *RPCError `json:"error"`
}

func (r *jsonRPCResponse) rpcError() *RPCError {
	return r.Error
}

type response interface {
	rpcError() *RPCError
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func getRPCRequestBody(method string, params []interface{}) ([]byte, error) {
	if params == nil {
		params = []interface{}{}
	}

	return json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
}

// call sends the request to one server after another until one answers.
// Every failure is reported as errs.ErrNetwork.
func (c *Client) call(ctx context.Context, method string, params []interface{}, target response) error {
	err := c.tryCall(ctx, method, params, target)
	if err != nil {
		metrics.RPCErrors.WithLabelValues(method).Inc()
		return fmt.Errorf("%w: %s: %v", errs.ErrNetwork, method, err)
	}
	return nil
}

func (c *Client) tryCall(ctx context.Context, method string, params []interface{}, target response) error {
	requestBody, err := getRPCRequestBody(method, params)
	if err != nil {
		return err
	}

	attempts := c.serverCount()
	if attempts == 0 {
		return errNoServerConf
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		url, ok := c.getServer(0)
		if !ok {
			if lastErr == nil {
				lastErr = errNoServer
			}
			break
		}

		bodyBytes, err := c.post(ctx, url, requestBody)
		if err != nil {
			log.Error.Errorf("%s %s: %v", url, method, err)
			c.serverUnavailable(url)
			lastErr = err
			continue
		}

		if err := json.Unmarshal(bodyBytes, target); err != nil {
			log.Error.Errorf("%s", eParser.Wrap(err, 0).ErrorStack())
			log.Error.Errorf("Request body: %s", requestBody)
			log.Error.Errorf("Response: %s", bodyBytes)
			return err
		}

		if rpcErr := target.rpcError(); rpcErr != nil {
			return rpcErr
		}

		return nil
	}

	return lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusTooManyRequests:
		return nil, errRateLimited
	case code != fasthttp.StatusOK:
		return nil, fmt.Errorf("%w: %d", errBadStatus, code)
	}

	return append([]byte(nil), resp.Body()...), nil
}
