package chain

import (
	"context"
	"fmt"
	"net/url"
)

// BlockResolver reports the chain's last finalized block through the
// explorer's JSON-RPC proxy.
type BlockResolver struct {
	client *Client
}

func NewBlockResolver(client *Client) *BlockResolver {
	return &BlockResolver{client: client}
}

type blockHeader struct {
	Number string `json:"number"`
}

func (r *BlockResolver) LastFinalizedBlock(ctx context.Context, chainID uint64) (uint64, error) {
	params := url.Values{}
	params.Set("action", "eth_getBlockByNumber")
	params.Set("tag", "finalized")
	params.Set("boolean", "false")

	var header blockHeader
	if err := r.client.rpc(ctx, "finalized_block", chainID, params, &header); err != nil {
		return 0, err
	}
	if header.Number == "" {
		return 0, fmt.Errorf("chain %d: finalized block header missing number", chainID)
	}
	return parseHexUint64(header.Number)
}
