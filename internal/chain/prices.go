package chain

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// slot0Selector is the 4-byte selector of the pool's slot0() view; its
// first return word is the Q64.96 sqrt price.
const slot0Selector = "0x3850c7bd"

// PriceProvider reads pool prices at historical blocks via archived
// eth_call through the explorer proxy.
type PriceProvider struct {
	client *Client
}

func NewPriceProvider(client *Client) *PriceProvider {
	return &PriceProvider{client: client}
}

func (p *PriceProvider) PriceAt(ctx context.Context, chainID uint64, pool string, block uint64) (ledger.PoolPrice, error) {
	tag := fmt.Sprintf("0x%x", block)

	params := url.Values{}
	params.Set("action", "eth_call")
	params.Set("to", pool)
	params.Set("data", slot0Selector)
	params.Set("tag", tag)

	var result string
	if err := p.client.rpc(ctx, "pool_price", chainID, params, &result); err != nil {
		return ledger.PoolPrice{}, err
	}

	sqrtPrice, err := dataWord(result, 0)
	if err != nil {
		return ledger.PoolPrice{}, fmt.Errorf("pool %s slot0 at block %d: %w", pool, block, err)
	}
	if sqrtPrice.Sign() == 0 {
		return ledger.PoolPrice{}, fmt.Errorf("pool %s slot0 at block %d: zero sqrt price", pool, block)
	}

	ts, err := p.blockTimestamp(ctx, chainID, tag)
	if err != nil {
		return ledger.PoolPrice{}, err
	}

	return ledger.PoolPrice{SqrtPriceX96: sqrtPrice, Timestamp: ts}, nil
}

type timestampHeader struct {
	Timestamp string `json:"timestamp"`
}

func (p *PriceProvider) blockTimestamp(ctx context.Context, chainID uint64, tag string) (time.Time, error) {
	params := url.Values{}
	params.Set("action", "eth_getBlockByNumber")
	params.Set("tag", tag)
	params.Set("boolean", "false")

	var header timestampHeader
	if err := p.client.rpc(ctx, "block_timestamp", chainID, params, &header); err != nil {
		return time.Time{}, err
	}
	ts, err := parseHexUint64(header.Timestamp)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}
