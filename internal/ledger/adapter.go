package ledger

import (
	"math/big"

	"github.com/google/uuid"
)

// PositionRef carries everything an adapter needs to process events for
// one position: the generic ledger id, the protocol-native identifier
// (e.g. an NFT token id), the pool, its quote orientation and token
// scales, and the position's coordinate bounds.
type PositionRef struct {
	PositionID         uuid.UUID
	ChainID            uint64
	ProtocolPositionID string
	Pool               string
	Market             MarketParams

	// RangeLower/RangeUpper are the position's tick bounds.
	RangeLower int32
	RangeUpper int32
}

// Adapter is the protocol-specific half of the ledger engine. The generic
// chain never interprets config/state payloads; the adapter owns their
// typed representation, the serialization boundary (string-encoded big
// integers live only there), and the event processing that fills one
// Event from one raw chain event.
//
// Implementations must be stateless: ProcessEvent is replayed to rebuild
// history and has to produce identical output for identical input.
type Adapter interface {
	// Protocol returns the protocol tag stored on every event.
	Protocol() string

	// DeploymentBlock is the earliest block the protocol's contracts
	// could have emitted relevant events on the given chain.
	DeploymentBlock(chainID uint64) uint64

	// ComputeInputHash derives the idempotency key for a raw event.
	ComputeInputHash(positionID uuid.UUID, raw RawEvent) string

	// SeedState reconstructs the running state from the last surviving
	// event (its serialized state plus the cumulative financial fields),
	// or returns the zero state for nil input.
	SeedState(last *Event) (RunningState, error)

	// ProcessEvent applies one raw event and returns the fully populated
	// ledger event (without ID/PreviousID, which the store assigns) plus
	// the resulting running state.
	ProcessEvent(ref PositionRef, prev RunningState, raw RawEvent, price PoolPrice) (*Event, RunningState, error)

	// UnclaimedFees reports fee amounts accrued on-chain but not yet
	// collected, derived from the last event's state payload. Zero for
	// nil input or when the payload carries no checkpoint data.
	UnclaimedFees(last *Event) (amount0, amount1 *big.Int, err error)
}
