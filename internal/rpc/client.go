package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/dreamware/nudge/internal/hint"
)

// DefaultTimeout bounds one forwarded call.
const DefaultTimeout = 5 * time.Second

// Client forwards the call surface to a leader's loopback endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	nextID  atomic.Int64
}

var _ Handler = (*Client)(nil)

// NewClient returns a Client for the endpoint at host:port. A zero timeout
// selects DefaultTimeout.
func NewClient(host string, port int, timeout time.Duration) *Client {
	return NewClientForURL(BaseURL(host, port), timeout)
}

// NewClientForURL returns a Client for an endpoint given by base URL.
func NewClientForURL(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    NewHTTPClient(timeout),
	}
}

// NewHTTPClient returns a pooled client with the given overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = timeout
	return c
}

// BaseURL renders the endpoint URL for host:port.
func BaseURL(host string, port int) string {
	return "http://" + host + ":" + strconv.Itoa(port)
}

// URL returns the base URL of the endpoint.
func (c *Client) URL() string { return c.baseURL }

// Call performs one JSON-RPC call and decodes its result into out.
// Transport failures come back as retryable UNAVAILABLE errors; remote
// business errors come back as the *hint.Error the leader produced.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return hint.FieldError(hint.CodeInvalid, "params", "encode params: %v", err)
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	reqBody, err := json.Marshal(Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return hint.FieldError(hint.CodeInvalid, "params", "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(reqBody))
	if err != nil {
		return hint.Unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return hint.Unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hint.Unavailable(fmt.Errorf("http %s: %d", c.baseURL, resp.StatusCode))
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return hint.Unavailable(fmt.Errorf("decode response: %w", err))
	}
	if rpcResp.Error != nil {
		return rpcResp.Error.toHintError()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return &hint.Error{Code: hint.CodeInternal, Message: fmt.Sprintf("decode result: %v", err)}
	}
	return nil
}

func (c *Client) SetHint(ctx context.Context, p SetHintParams) (*HintResult, error) {
	var out HintResult
	if err := c.Call(ctx, MethodSetHint, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetHint(ctx context.Context, p GetHintParams) (*GetHintResult, error) {
	var out GetHintResult
	if err := c.Call(ctx, MethodGetHint, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Query(ctx context.Context, p QueryParams) (*QueryResult, error) {
	var out QueryResult
	if err := c.Call(ctx, MethodQuery, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteHint(ctx context.Context, p DeleteHintParams) (*DeleteHintResult, error) {
	var out DeleteHintResult
	if err := c.Call(ctx, MethodDeleteHint, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListComponents(ctx context.Context) (*ListComponentsResult, error) {
	var out ListComponentsResult
	if err := c.Call(ctx, MethodListComponents, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Bump(ctx context.Context, p BumpParams) (*HintResult, error) {
	var out HintResult
	if err := c.Call(ctx, MethodBump, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Export(ctx context.Context, p ExportParams) (*ExportResult, error) {
	var out ExportResult
	if err := c.Call(ctx, MethodExport, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Import(ctx context.Context, p ImportParams) (*ImportResult, error) {
	var out ImportResult
	if err := c.Call(ctx, MethodImport, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := getJSON(ctx, c.http, c.baseURL+"/health", &h)
	return h, err
}

// Status fetches GET /status into out.
func (c *Client) Status(ctx context.Context, out any) error {
	return getJSON(ctx, c.http, c.baseURL+"/status", out)
}

// Shutdown asks the process behind the endpoint to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return hint.Unavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s/shutdown: %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// Probe checks whether a nudge endpoint answers on host:port within the
// client's timeout and returns its identity.
func Probe(ctx context.Context, client *http.Client, host string, port int) (Health, error) {
	var h Health
	if err := getJSON(ctx, client, BaseURL(host, port)+"/health", &h); err != nil {
		return h, err
	}
	if h.Status != "ok" {
		return h, fmt.Errorf("unhealthy status %q", h.Status)
	}
	return h, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
