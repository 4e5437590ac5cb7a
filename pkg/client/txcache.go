package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"signet-swap/pkg/metrics"
	"signet-swap/pkg/types"
)

// DefaultBaseURL is the Pecorino transaction cache
const DefaultBaseURL = "https://transactions.pecorino.signet.sh"

// HTTPDoer abstracts http.Client for ease of testing
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TxCacheClient talks to the Signet transaction cache, directly or through
// the same-origin proxy for order submission.
type TxCacheClient struct {
	baseURL  string
	proxyURL string
	http     HTTPDoer
	logger   *slog.Logger
	metrics  *metrics.Swap
}

// Option configures a TxCacheClient
type Option func(*TxCacheClient)

// WithProxy routes ForwardOrder through a proxy endpoint
func WithProxy(proxyURL string) Option {
	return func(c *TxCacheClient) { c.proxyURL = strings.TrimSpace(proxyURL) }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *TxCacheClient) { c.http = doer }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *TxCacheClient) { c.logger = logger }
}

// WithMetrics records request outcomes
func WithMetrics(m *metrics.Swap) Option {
	return func(c *TxCacheClient) { c.metrics = m }
}

// NewTxCacheClient creates a new transaction cache client
func NewTxCacheClient(baseURL string, opts ...Option) *TxCacheClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &TxCacheClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "txcache")
	return c
}

// BaseURL returns the upstream cache URL
func (c *TxCacheClient) BaseURL() string {
	return c.baseURL
}

// ForwardOrder submits a signed order. It never retries; the caller decides.
func (c *TxCacheClient) ForwardOrder(ctx context.Context, order *types.SignedOrder) error {
	if c.proxyURL != "" {
		var envelope struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if err := c.postJSON(ctx, "forward order", c.proxyURL, order, &envelope); err != nil {
			return err
		}
		if !envelope.Success {
			return &CacheSubmissionError{Op: "forward order", Endpoint: c.proxyURL, Kind: KindBadResponse, Err: fmt.Errorf("proxy reported no success")}
		}
		c.logger.Info("order forwarded via proxy", "order_id", order.ID())
		return nil
	}

	if err := c.postJSON(ctx, "forward order", c.baseURL+"/orders", order, nil); err != nil {
		return err
	}
	c.logger.Info("order forwarded", "order_id", order.ID())
	return nil
}

// ForwardBundle submits a bundle and returns its cache id
func (c *TxCacheClient) ForwardBundle(ctx context.Context, bundle *types.SignetEthBundle) (*types.SendBundleResponse, error) {
	var resp types.SendBundleResponse
	if err := c.postJSON(ctx, "forward bundle", c.baseURL+"/bundles", bundle, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForwardRawTransaction submits a signed transaction envelope
func (c *TxCacheClient) ForwardRawTransaction(ctx context.Context, tx *gethtypes.Transaction) (*types.SendTransactionResponse, error) {
	var resp types.SendTransactionResponse
	if err := c.postJSON(ctx, "forward transaction", c.baseURL+"/transactions", tx, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrders lists the signed orders currently held by the cache
func (c *TxCacheClient) GetOrders(ctx context.Context) ([]types.SignedOrder, error) {
	var resp types.OrdersResponse
	if err := c.getJSON(ctx, "get orders", "/orders", &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetBundles lists the bundles currently held by the cache
func (c *TxCacheClient) GetBundles(ctx context.Context) ([]types.CachedBundle, error) {
	var resp types.BundlesResponse
	if err := c.getJSON(ctx, "get bundles", "/bundles", &resp); err != nil {
		return nil, err
	}
	return resp.Bundles, nil
}

// GetTransactions lists raw transaction envelopes held by the cache
func (c *TxCacheClient) GetTransactions(ctx context.Context) ([]json.RawMessage, error) {
	var resp types.TransactionsResponse
	if err := c.getJSON(ctx, "get transactions", "/transactions", &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *TxCacheClient) postJSON(ctx context.Context, op, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}

func (c *TxCacheClient) getJSON(ctx context.Context, op, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}

func (c *TxCacheClient) do(req *http.Request, op string, out interface{}) error {
	endpoint := req.URL.String()
	label := req.URL.Path

	httpResp, err := c.http.Do(req)
	if err != nil {
		c.metrics.CacheRequest(label, string(KindUnreachable))
		c.logger.Warn("transaction cache unreachable", "op", op, "endpoint", endpoint, "error", err)
		return &CacheSubmissionError{Op: op, Endpoint: endpoint, Kind: KindUnreachable, Err: err}
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.CacheRequest(label, string(KindUnreachable))
		return &CacheSubmissionError{Op: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Kind: KindUnreachable, Err: err}
	}

	// Check for successful status codes (200-299)
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message, details := extractMessage(bodyBytes)
		kind := classify(httpResp.StatusCode, message)
		c.metrics.CacheRequest(label, string(kind))
		c.logger.Warn("transaction cache rejected request", "op", op, "status", httpResp.StatusCode, "kind", kind, "message", message)
		return &CacheSubmissionError{
			Op:         op,
			Endpoint:   endpoint,
			StatusCode: httpResp.StatusCode,
			Kind:       kind,
			Message:    message,
			Details:    details,
		}
	}

	c.metrics.CacheRequest(label, "ok")
	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &CacheSubmissionError{Op: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Kind: KindBadResponse, Err: err}
	}
	return nil
}
