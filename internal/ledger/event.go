package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the three financial state transitions a
// concentrated-liquidity position can undergo.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeIncreasePosition
	EventTypeDecreasePosition
	EventTypeCollect
)

func (et EventType) String() string {
	switch et {
	case EventTypeIncreasePosition:
		return "INCREASE_POSITION"
	case EventTypeDecreasePosition:
		return "DECREASE_POSITION"
	case EventTypeCollect:
		return "COLLECT"
	default:
		return "UNKNOWN"
	}
}

// Coordinate is the global blockchain position of an on-chain event. It is
// the canonical ordering and dedup key within a position's ledger.
type Coordinate struct {
	BlockNumber      uint64
	TransactionIndex uint32
	LogIndex         uint32
}

// Compare orders coordinates by (block, txIndex, logIndex) ascending.
func (c Coordinate) Compare(other Coordinate) int {
	switch {
	case c.BlockNumber != other.BlockNumber:
		if c.BlockNumber < other.BlockNumber {
			return -1
		}
		return 1
	case c.TransactionIndex != other.TransactionIndex:
		if c.TransactionIndex < other.TransactionIndex {
			return -1
		}
		return 1
	case c.LogIndex != other.LogIndex:
		if c.LogIndex < other.LogIndex {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (c Coordinate) Before(other Coordinate) bool { return c.Compare(other) < 0 }

// Key returns the coordinate's dedup key.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%d:%d:%d", c.BlockNumber, c.TransactionIndex, c.LogIndex)
}

// Reward is the fee portion of a COLLECT for one token, with its quote
// valuation at the event's pool price.
type Reward struct {
	Token  string
	Amount *big.Int
	Value  *big.Int
}

// Event is one immutable record of a financial state transition for a
// position. Events form a singly linked list via PreviousID; they are
// created during processor replay and never mutated, only bulk-deleted
// when a resync invalidates a suffix of the chain.
type Event struct {
	ID         uuid.UUID
	PositionID uuid.UUID
	PreviousID *uuid.UUID
	Protocol   string

	Timestamp       time.Time
	Coordinate      Coordinate
	TransactionHash string

	EventType EventType

	// InputHash is the deterministic idempotency key derived from the
	// event's identifying coordinates; unique per position.
	InputHash string

	// Financial fields, fixed-point integers in smallest quote units.
	PoolPrice      *big.Int
	Token0Amount   *big.Int
	Token1Amount   *big.Int
	TokenValue     *big.Int
	Rewards        []Reward
	DeltaCostBasis *big.Int
	CostBasisAfter *big.Int
	DeltaPnl       *big.Int
	PnlAfter       *big.Int

	// Protocol-specific payloads, opaque to the generic chain. Config is
	// the immutable identifying data; State the point-in-time on-chain
	// snapshot after this event. Both are produced and consumed only by
	// the protocol adapter.
	Config []byte
	State  []byte
}

// RawEvent is a validated on-chain event as delivered by the chain-event
// source, before any financial processing.
type RawEvent struct {
	Type            EventType
	Coordinate      Coordinate
	TransactionHash string
	Timestamp       time.Time

	// DeltaLiquidity is the liquidity added (INCREASE) or removed
	// (DECREASE); nil for COLLECT.
	DeltaLiquidity *big.Int

	// Token amounts moved by this event: deposited for INCREASE, withdrawn
	// from the position for DECREASE, physically collected for COLLECT.
	Amount0 *big.Int
	Amount1 *big.Int

	// StateSnapshot is an optional protocol-specific point-in-time state
	// payload attached by the event source (fee-growth checkpoints,
	// owed-token amounts). Opaque here; parsed by the adapter.
	StateSnapshot []byte
}

// PoolPrice is a point-in-time pool price observation keyed by block.
type PoolPrice struct {
	SqrtPriceX96 *big.Int
	Timestamp    time.Time
}

// MarketParams identifies the quote orientation and token scales of the
// pool a position sits in.
type MarketParams struct {
	QuoteIsToken0 bool
	Decimals0     uint8
	Decimals1     uint8
	Token0        string
	Token1        string
}
