package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/serde"
	sjson "github.com/bitpond/appkit/serde/json"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

const (
	// DefaultAddress is the address of a ledger started with the default
	// flags.
	DefaultAddress = "http://127.0.0.1:8080"

	defaultTimeout = 10 * time.Second
	defaultRate    = rate.Limit(20)
	defaultBurst   = 5
)

// Client is a client of a ledger served over HTTP.
//
// - implements ledger.Service
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	token   string
	ctx     serde.Context
}

type clientTemplate struct {
	http    *http.Client
	limiter *rate.Limiter
	token   string
}

// ClientOption is the type of options to create a client.
type ClientOption func(*clientTemplate)

// WithClientToken is an option to send the access token with every request.
func WithClientToken(token string) ClientOption {
	return func(tmpl *clientTemplate) {
		tmpl.token = token
	}
}

// WithHTTPClient is an option to use a specific HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(tmpl *clientTemplate) {
		tmpl.http = client
	}
}

// WithRateLimit is an option to change the number of requests per second and
// the burst allowed to the client.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(tmpl *clientTemplate) {
		tmpl.limiter = rate.NewLimiter(limit, burst)
	}
}

// NewClient creates a client of the ledger at the address.
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(addr)
	if err != nil {
		return nil, xerrors.Errorf("invalid address '%s': %v", addr, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, xerrors.Errorf("invalid address '%s': unsupported scheme", addr)
	}

	tmpl := clientTemplate{
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	c := &Client{
		base:    base,
		http:    tmpl.http,
		limiter: tmpl.limiter,
		token:   tmpl.token,
		ctx:     sjson.NewContext(),
	}

	return c, nil
}

// Compile implements ledger.Service.
func (c *Client) Compile(ctx context.Context, source string) (ledger.Compiled, error) {
	body, err := json.Marshal(CompileRequest{Source: source})
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("failed to encode request: %v", err)
	}

	var compiled ledger.Compiled

	err = c.do(ctx, http.MethodPost, "/v1/compile", body, &compiled)
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("compile: %w", err)
	}

	return compiled, nil
}

// SuggestedParams implements ledger.Service.
func (c *Client) SuggestedParams(ctx context.Context) (txn.Params, error) {
	var params ParamsJSON

	err := c.do(ctx, http.MethodGet, "/v1/params", nil, &params)
	if err != nil {
		return txn.Params{}, xerrors.Errorf("params: %w", err)
	}

	return params.params(), nil
}

// Submit implements ledger.Service. A transport failure is returned as
// unavailable, in which case the transaction may or may not have reached the
// ledger.
func (c *Client) Submit(ctx context.Context, tx *signed.Transaction) (string, error) {
	data, err := tx.Serialize(c.ctx)
	if err != nil {
		return "", xerrors.Errorf("failed to serialize tx: %v", err)
	}

	var resp SubmitResponse

	err = c.do(ctx, http.MethodPost, "/v1/transactions", data, &resp)
	if err != nil {
		return "", xerrors.Errorf("submit: %w", err)
	}

	return resp.ID, nil
}

// Status implements ledger.Service.
func (c *Client) Status(ctx context.Context, id string) (ledger.Status, error) {
	var status ledger.Status

	err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil, &status)
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("status: %w", err)
	}

	return status, nil
}

// GetApplicationState implements ledger.Service.
func (c *Client) GetApplicationState(ctx context.Context, id uint64) (map[string]execution.Value, error) {
	var app ApplicationJSON

	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/applications/%d", id), nil, &app)
	if err != nil {
		return nil, xerrors.Errorf("application: %w", err)
	}

	if app.State == nil {
		app.State = make(map[string]execution.Value)
	}

	return app.State, nil
}

// GetAccount implements ledger.Service.
func (c *Client) GetAccount(ctx context.Context, addr txn.Address) (ledger.Account, error) {
	var acct ledger.Account

	err := c.do(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, &acct)
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("account: %w", err)
	}

	return acct, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return ledger.NewUnavailableError(xerrors.Errorf("rate limiter: %v", err))
	}

	target := *c.base
	target.Path = strings.TrimSuffix(target.Path, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ledger.NewUnavailableError(err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return ledger.NewUnavailableError(xerrors.Errorf("failed to read response: %v", err))
	}

	if resp.StatusCode >= 300 {
		return errorOf(resp.StatusCode, data)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return xerrors.Errorf("failed to decode response: %v", err)
	}

	return nil
}

// errorOf maps the response of a failed request to the errors of the ledger
// package.
func errorOf(code int, data []byte) error {
	var msg ErrorJSON

	err := json.Unmarshal(data, &msg)
	if err != nil || msg.Error == "" {
		msg.Error = strings.TrimSpace(string(data))
	}

	switch {
	case code == http.StatusConflict:
		return ledger.ErrAlreadySeen
	case code == http.StatusUnprocessableEntity:
		return ledger.NewRejectedError(msg.Reason)
	case code == http.StatusNotFound:
		return xerrors.Errorf("%s: %w", msg.Error, ledger.ErrNotFound)
	case code >= http.StatusInternalServerError:
		return ledger.NewUnavailableError(xerrors.Errorf("%d: %s", code, msg.Error))
	default:
		return xerrors.Errorf("%d: %s", code, msg.Error)
	}
}
