// Package chain implements the syncer's data-provider interfaces against
// an Etherscan-compatible explorer API: raw position events from the
// position manager's logs, pool prices via archived eth_call, and the
// finalized block via the proxy module.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
)

// Client is a thin explorer API client shared by the provider
// implementations. One client serves all chains; the chain id rides along
// as a query parameter, Etherscan v2 style.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
	metrics    *observability.Metrics
}

func NewClient(baseURL, apiKey string, log zerolog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		log:        log,
		metrics:    metrics,
	}
}

// listEnvelope is the explorer's response shape for list endpoints.
type listEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// rpcEnvelope is the response shape for proxied JSON-RPC endpoints.
type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, op string, chainID uint64, params url.Values) ([]byte, error) {
	params.Set("chainid", strconv.FormatUint(chainID, 10))
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build explorer request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues("explorer", op).Inc()
		c.metrics.ProviderDuration.WithLabelValues("explorer", op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countError(op)
		return nil, fmt.Errorf("explorer %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		c.countError(op)
		return nil, fmt.Errorf("explorer %s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.countError(op)
		return nil, fmt.Errorf("explorer %s: http %d", op, resp.StatusCode)
	}
	return body, nil
}

// list performs a list-module request and unwraps its result. A "No
// records found" message maps to an empty result, not an error.
func (c *Client) list(ctx context.Context, op string, chainID uint64, params url.Values, out any) error {
	body, err := c.get(ctx, op, chainID, params)
	if err != nil {
		return err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.countError(op)
		return fmt.Errorf("explorer %s: decode envelope: %w", op, err)
	}
	if env.Status != "1" {
		if strings.Contains(env.Message, "No records found") {
			return nil
		}
		c.countError(op)
		return fmt.Errorf("explorer %s: %s", op, env.Message)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		c.countError(op)
		return fmt.Errorf("explorer %s: decode result: %w", op, err)
	}
	return nil
}

// rpc performs a proxy-module request and unwraps the JSON-RPC result.
func (c *Client) rpc(ctx context.Context, op string, chainID uint64, params url.Values, out any) error {
	params.Set("module", "proxy")
	body, err := c.get(ctx, op, chainID, params)
	if err != nil {
		return err
	}

	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.countError(op)
		return fmt.Errorf("explorer %s: decode envelope: %w", op, err)
	}
	if env.Error != nil {
		c.countError(op)
		return fmt.Errorf("explorer %s: rpc error %d: %s", op, env.Error.Code, env.Error.Message)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		c.countError(op)
		return fmt.Errorf("explorer %s: decode result: %w", op, err)
	}
	return nil
}

func (c *Client) countError(op string) {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues("explorer", op).Inc()
	}
}

// ============================================================
// Hex decoding
// ============================================================

func parseHexUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return v, nil
}

func parseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("parse hex %q: not hexadecimal", s)
	}
	return v, nil
}

func parseDecimalBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("parse decimal %q: not a non-negative integer", s)
	}
	return v, nil
}

// dataWord extracts the i-th 32-byte word of ABI-encoded call data.
func dataWord(data string, i int) (*big.Int, error) {
	trimmed := strings.TrimPrefix(data, "0x")
	start := i * 64
	if len(trimmed) < start+64 {
		return nil, fmt.Errorf("abi data too short: want word %d of %d chars", i, len(trimmed))
	}
	return parseHexBig(trimmed[start : start+64])
}
