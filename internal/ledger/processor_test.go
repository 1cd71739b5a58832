package ledger_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// Test market: token1 (6 decimals) is quote, parity raw price so pure
// token1 flows value 1:1 and the numbers stay readable.
func testMarket() ledger.MarketParams {
	return ledger.MarketParams{
		QuoteIsToken0: false,
		Decimals0:     18,
		Decimals1:     6,
		Token0:        "0xWETH",
		Token1:        "0xUSDC",
	}
}

func parityPrice(ts time.Time) ledger.PoolPrice {
	return ledger.PoolPrice{
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Timestamp:    ts,
	}
}

func coord(block uint64, tx, log uint32) ledger.Coordinate {
	return ledger.Coordinate{BlockNumber: block, TransactionIndex: tx, LogIndex: log}
}

func e18(n int64) *big.Int {
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return v.Mul(v, big.NewInt(n))
}

// TestApply_PositionLifecycle walks a position through the canonical
// three-event sequence: deposit 2000 quote, withdraw half the liquidity
// for 1100 quote, then collect the withdrawn principal plus 20 in fees.
func TestApply_PositionLifecycle(t *testing.T) {
	market := testMarket()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	state := ledger.ZeroState()

	// INCREASE: 1e18 liquidity, 2000 quote units in.
	increase := ledger.RawEvent{
		Type:            ledger.EventTypeIncreasePosition,
		Coordinate:      coord(100, 0, 1),
		TransactionHash: "0xaaa",
		Timestamp:       base,
		DeltaLiquidity:  e18(1),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(2_000),
	}
	tr, err := ledger.Apply(state, increase, parityPrice(base), market)
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if tr.DeltaCostBasis.Cmp(big.NewInt(2_000)) != 0 {
		t.Errorf("increase deltaCostBasis: got %s, want 2000", tr.DeltaCostBasis)
	}
	if tr.CostBasisAfter.Cmp(big.NewInt(2_000)) != 0 {
		t.Errorf("increase costBasisAfter: got %s, want 2000", tr.CostBasisAfter)
	}
	if tr.DeltaPnl.Sign() != 0 || tr.PnlAfter.Sign() != 0 {
		t.Errorf("increase must not move pnl: delta=%s after=%s", tr.DeltaPnl, tr.PnlAfter)
	}
	if tr.Next.UncollectedPrincipal1.Sign() != 0 {
		t.Errorf("increase must not touch uncollected principal")
	}
	state = tr.Next

	// DECREASE: half the liquidity out, worth 1100 quote units.
	decrease := ledger.RawEvent{
		Type:            ledger.EventTypeDecreasePosition,
		Coordinate:      coord(200, 0, 1),
		TransactionHash: "0xbbb",
		Timestamp:       base.Add(24 * time.Hour),
		DeltaLiquidity:  new(big.Int).Rsh(e18(1), 1),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(1_100),
	}
	tr, err = ledger.Apply(state, decrease, parityPrice(decrease.Timestamp), market)
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if tr.TokenValue.Cmp(big.NewInt(1_100)) != 0 {
		t.Errorf("decrease tokenValue: got %s, want 1100", tr.TokenValue)
	}
	if tr.DeltaPnl.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("decrease deltaPnl: got %s, want 100 (1100 - 1000)", tr.DeltaPnl)
	}
	if tr.CostBasisAfter.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("decrease costBasisAfter: got %s, want 1000", tr.CostBasisAfter)
	}
	if tr.Next.UncollectedPrincipal1.Cmp(big.NewInt(1_100)) != 0 {
		t.Errorf("decrease uncollected principal: got %s, want 1100", tr.Next.UncollectedPrincipal1)
	}
	state = tr.Next

	// COLLECT: the 1100 principal plus 20 in fees leaves the contract.
	collect := ledger.RawEvent{
		Type:            ledger.EventTypeCollect,
		Coordinate:      coord(300, 0, 1),
		TransactionHash: "0xccc",
		Timestamp:       base.Add(48 * time.Hour),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(1_120),
	}
	tr, err = ledger.Apply(state, collect, parityPrice(collect.Timestamp), market)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(tr.Rewards) != 1 {
		t.Fatalf("collect rewards: got %d entries, want 1", len(tr.Rewards))
	}
	if tr.Rewards[0].Token != market.Token1 {
		t.Errorf("reward token: got %s, want %s", tr.Rewards[0].Token, market.Token1)
	}
	if tr.Rewards[0].Amount.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("reward amount: got %s, want 20", tr.Rewards[0].Amount)
	}
	if tr.Rewards[0].Value.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("reward value: got %s, want 20", tr.Rewards[0].Value)
	}
	if tr.DeltaPnl.Sign() != 0 || tr.DeltaCostBasis.Sign() != 0 {
		t.Errorf("collect must not move pnl or cost basis: deltaPnl=%s deltaCostBasis=%s", tr.DeltaPnl, tr.DeltaCostBasis)
	}
	if tr.Next.UncollectedPrincipal1.Sign() != 0 {
		t.Errorf("collect must drain uncollected principal, got %s", tr.Next.UncollectedPrincipal1)
	}
	if tr.PnlAfter.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("pnlAfter: got %s, want 100", tr.PnlAfter)
	}
	if tr.CostBasisAfter.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("costBasisAfter: got %s, want 1000", tr.CostBasisAfter)
	}
}

func TestApply_Deterministic(t *testing.T) {
	market := testMarket()
	ts := time.Unix(1_700_000_000, 0)
	raw := ledger.RawEvent{
		Type:            ledger.EventTypeIncreasePosition,
		Coordinate:      coord(42, 1, 7),
		TransactionHash: "0xdef",
		Timestamp:       ts,
		DeltaLiquidity:  e18(3),
		Amount0:         e18(1),
		Amount1:         big.NewInt(5_000_000),
	}

	first, err := ledger.Apply(ledger.ZeroState(), raw, parityPrice(ts), market)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	second, err := ledger.Apply(ledger.ZeroState(), raw, parityPrice(ts), market)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if first.TokenValue.Cmp(second.TokenValue) != 0 ||
		first.CostBasisAfter.Cmp(second.CostBasisAfter) != 0 ||
		first.PnlAfter.Cmp(second.PnlAfter) != 0 {
		t.Error("identical inputs must produce identical transitions")
	}
}

func TestApply_DoesNotMutatePrevState(t *testing.T) {
	market := testMarket()
	ts := time.Unix(1_700_000_000, 0)

	prev := ledger.ZeroState()
	prev.CostBasis.SetInt64(500)
	prev.Liquidity.Set(e18(1))

	raw := ledger.RawEvent{
		Type:            ledger.EventTypeDecreasePosition,
		Coordinate:      coord(9, 0, 0),
		TransactionHash: "0x1",
		Timestamp:       ts,
		DeltaLiquidity:  e18(1),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(600),
	}
	if _, err := ledger.Apply(prev, raw, parityPrice(ts), market); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if prev.CostBasis.Cmp(big.NewInt(500)) != 0 || prev.Liquidity.Cmp(e18(1)) != 0 {
		t.Error("Apply mutated the previous running state")
	}
}

func TestApply_DecreaseExceedingLiquidityFails(t *testing.T) {
	market := testMarket()
	ts := time.Unix(1_700_000_000, 0)

	prev := ledger.ZeroState()
	prev.Liquidity.SetInt64(10)
	prev.CostBasis.SetInt64(100)

	raw := ledger.RawEvent{
		Type:            ledger.EventTypeDecreasePosition,
		Coordinate:      coord(9, 0, 0),
		TransactionHash: "0x1",
		Timestamp:       ts,
		DeltaLiquidity:  big.NewInt(11),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(1),
	}
	if _, err := ledger.Apply(prev, raw, parityPrice(ts), market); err == nil {
		t.Error("expected error when decrease exceeds current liquidity")
	}
}

func TestComputeInputHash_StableAndPositionScoped(t *testing.T) {
	raw := ledger.RawEvent{
		Type:            ledger.EventTypeCollect,
		Coordinate:      coord(123, 4, 5),
		TransactionHash: "0xfeed",
	}

	posA := mustUUID(t, "550e8400-e29b-41d4-a716-446655440000")
	posB := mustUUID(t, "550e8400-e29b-41d4-a716-446655440001")

	h1 := ledger.ComputeInputHash("uniswapv3", posA, raw)
	h2 := ledger.ComputeInputHash("uniswapv3", posA, raw)
	if h1 != h2 {
		t.Error("input hash must be deterministic")
	}
	if h1 == ledger.ComputeInputHash("uniswapv3", posB, raw) {
		t.Error("input hash must differ across positions")
	}

	shifted := raw
	shifted.Coordinate.LogIndex++
	if h1 == ledger.ComputeInputHash("uniswapv3", posA, shifted) {
		t.Error("input hash must differ across coordinates")
	}
}
