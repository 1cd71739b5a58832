// Package uniswapv3 implements the protocol adapter for Uniswap-V3-style
// concentrated-liquidity positions: event processing through the generic
// ledger processors, plus the config/state serialization boundary.
package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// ProtocolName tags every event produced by this adapter.
const ProtocolName = "uniswapv3"

// deploymentBlocks maps chain id to the NonfungiblePositionManager
// deployment block, the earliest block relevant events can exist in.
var deploymentBlocks = map[uint64]uint64{
	1:     12369651, // mainnet
	10:    0,        // optimism (predeploy era)
	137:   22757547, // polygon
	8453:  1371680,  // base
	42161: 165,      // arbitrum one
}

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Protocol() string {
	return ProtocolName
}

func (a *Adapter) DeploymentBlock(chainID uint64) uint64 {
	return deploymentBlocks[chainID]
}

func (a *Adapter) ComputeInputHash(positionID uuid.UUID, raw ledger.RawEvent) string {
	return ledger.ComputeInputHash(ProtocolName, positionID, raw)
}

// SeedState rebuilds the replay state from the last surviving event:
// liquidity and the uncollected-principal pool come from the serialized
// state payload, the cumulative financial fields from the event itself.
func (a *Adapter) SeedState(last *ledger.Event) (ledger.RunningState, error) {
	if last == nil {
		return ledger.ZeroState(), nil
	}

	st, err := ParseState(last.State)
	if err != nil {
		return ledger.RunningState{}, fmt.Errorf("seed state from event %s: %w", last.ID, err)
	}

	return ledger.RunningState{
		Liquidity:             st.Liquidity,
		CostBasis:             new(big.Int).Set(last.CostBasisAfter),
		Pnl:                   new(big.Int).Set(last.PnlAfter),
		UncollectedPrincipal0: st.UncollectedPrincipal0,
		UncollectedPrincipal1: st.UncollectedPrincipal1,
	}, nil
}

// UnclaimedFees derives accrued-but-uncollected fee amounts from the last
// event's state payload. TokensOwed covers both burned principal and fees;
// the principal share is subtracted and negatives floor at zero.
func (a *Adapter) UnclaimedFees(last *ledger.Event) (*big.Int, *big.Int, error) {
	if last == nil {
		return new(big.Int), new(big.Int), nil
	}

	st, err := ParseState(last.State)
	if err != nil {
		return nil, nil, fmt.Errorf("unclaimed fees from event %s: %w", last.ID, err)
	}

	fee0 := new(big.Int).Sub(st.TokensOwed0, st.UncollectedPrincipal0)
	fee1 := new(big.Int).Sub(st.TokensOwed1, st.UncollectedPrincipal1)
	if fee0.Sign() < 0 {
		fee0.SetInt64(0)
	}
	if fee1.Sign() < 0 {
		fee1.SetInt64(0)
	}
	return fee0, fee1, nil
}

// ProcessEvent applies one raw chain event through the generic processors
// and lifts the transition into a full ledger event with serialized
// config/state payloads. Pure: identical inputs produce identical output.
func (a *Adapter) ProcessEvent(ref ledger.PositionRef, prev ledger.RunningState, raw ledger.RawEvent, price ledger.PoolPrice) (*ledger.Event, ledger.RunningState, error) {
	tr, err := ledger.Apply(prev, raw, price, ref.Market)
	if err != nil {
		return nil, ledger.RunningState{}, err
	}

	cfg, err := SerializeConfig(Config{
		ChainID:       ref.ChainID,
		NFTID:         ref.ProtocolPositionID,
		Pool:          ref.Pool,
		Token0:        ref.Market.Token0,
		Token1:        ref.Market.Token1,
		Decimals0:     ref.Market.Decimals0,
		Decimals1:     ref.Market.Decimals1,
		QuoteIsToken0: ref.Market.QuoteIsToken0,
		TickLower:     ref.RangeLower,
		TickUpper:     ref.RangeUpper,
	})
	if err != nil {
		return nil, ledger.RunningState{}, err
	}

	st := State{
		Liquidity:             tr.Next.Liquidity,
		UncollectedPrincipal0: tr.Next.UncollectedPrincipal0,
		UncollectedPrincipal1: tr.Next.UncollectedPrincipal1,
	}
	// Checkpoint fields ride along when the source attaches a snapshot;
	// liquidity and the principal pool stay bookkeeping-authoritative.
	if len(raw.StateSnapshot) > 0 {
		snap, err := ParseState(raw.StateSnapshot)
		if err != nil {
			return nil, ledger.RunningState{}, fmt.Errorf("event at %s: %w", raw.Coordinate.Key(), err)
		}
		st.FeeGrowthInside0LastX128 = snap.FeeGrowthInside0LastX128
		st.FeeGrowthInside1LastX128 = snap.FeeGrowthInside1LastX128
		st.TokensOwed0 = snap.TokensOwed0
		st.TokensOwed1 = snap.TokensOwed1
	}

	stateBytes, err := SerializeState(st)
	if err != nil {
		return nil, ledger.RunningState{}, err
	}

	evt := &ledger.Event{
		PositionID:      ref.PositionID,
		Protocol:        ProtocolName,
		Timestamp:       raw.Timestamp,
		Coordinate:      raw.Coordinate,
		TransactionHash: raw.TransactionHash,
		EventType:       raw.Type,
		InputHash:       a.ComputeInputHash(ref.PositionID, raw),
		PoolPrice:       tr.PoolPrice,
		Token0Amount:    tr.Token0Amount,
		Token1Amount:    tr.Token1Amount,
		TokenValue:      tr.TokenValue,
		Rewards:         tr.Rewards,
		DeltaCostBasis:  tr.DeltaCostBasis,
		CostBasisAfter:  tr.CostBasisAfter,
		DeltaPnl:        tr.DeltaPnl,
		PnlAfter:        tr.PnlAfter,
		Config:          cfg,
		State:           stateBytes,
	}

	return evt, tr.Next, nil
}
