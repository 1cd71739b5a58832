package syncer

import (
	"context"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// EventSource fetches a position's raw on-chain events for a block range,
// both bounds inclusive. The returned slice may be unordered; the
// orchestrator sorts before replay.
type EventSource interface {
	FetchEvents(ctx context.Context, ref ledger.PositionRef, fromBlock, toBlock uint64) ([]ledger.RawEvent, error)
}

// PriceProvider resolves the pool's sqrt price at a specific block.
type PriceProvider interface {
	PriceAt(ctx context.Context, chainID uint64, pool string, block uint64) (ledger.PoolPrice, error)
}

// FinalizedBlockResolver reports the newest finalized block of a chain.
// Syncs never read past it, so reorgs cannot invalidate stored events.
type FinalizedBlockResolver interface {
	LastFinalizedBlock(ctx context.Context, chainID uint64) (uint64, error)
}
