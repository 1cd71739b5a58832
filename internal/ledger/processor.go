package ledger

import (
	"fmt"
	"math/big"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/fixedpoint"
)

// Transition is the financial outcome of applying one raw event to a
// running state. The protocol adapter lifts it into a full Event together
// with the serialized config/state payloads.
type Transition struct {
	PoolPrice      *big.Int
	Token0Amount   *big.Int
	Token1Amount   *big.Int
	TokenValue     *big.Int
	Rewards        []Reward
	DeltaCostBasis *big.Int
	CostBasisAfter *big.Int
	DeltaPnl       *big.Int
	PnlAfter       *big.Int
	Next           RunningState
}

// Apply runs the processor for the raw event's type. Pure and
// deterministic: no clock reads, no I/O, no mutation of prev.
func Apply(prev RunningState, raw RawEvent, price PoolPrice, market MarketParams) (Transition, error) {
	switch raw.Type {
	case EventTypeIncreasePosition:
		return applyIncrease(prev, raw, price, market)
	case EventTypeDecreasePosition:
		return applyDecrease(prev, raw, price, market)
	case EventTypeCollect:
		return applyCollect(prev, raw, price, market)
	default:
		return Transition{}, fmt.Errorf("%w: unknown event type %d at %s", ErrSequence, raw.Type, raw.Coordinate.Key())
	}
}

// applyIncrease handles new capital entering the position. The deposited
// pair is valued at the historic pool price and added to cost basis;
// adding capital is not a gain or loss, so PnL is untouched.
func applyIncrease(prev RunningState, raw RawEvent, price PoolPrice, market MarketParams) (Transition, error) {
	if raw.DeltaLiquidity == nil || raw.DeltaLiquidity.Sign() < 0 {
		return Transition{}, fmt.Errorf("%w: increase at %s without liquidity delta", fixedpoint.ErrInvalidArgument, raw.Coordinate.Key())
	}

	poolPrice, err := fixedpoint.PoolPriceInQuote(price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	value, err := fixedpoint.TokenPairValueInQuote(raw.Amount0, raw.Amount1, price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	next := prev.Clone()
	next.Liquidity.Add(next.Liquidity, raw.DeltaLiquidity)
	next.CostBasis.Add(next.CostBasis, value)

	return Transition{
		PoolPrice:      poolPrice,
		Token0Amount:   new(big.Int).Set(raw.Amount0),
		Token1Amount:   new(big.Int).Set(raw.Amount1),
		TokenValue:     value,
		DeltaCostBasis: new(big.Int).Set(value),
		CostBasisAfter: new(big.Int).Set(next.CostBasis),
		DeltaPnl:       new(big.Int),
		PnlAfter:       new(big.Int).Set(next.Pnl),
		Next:           next,
	}, nil
}

// applyDecrease handles capital leaving the position. The withdrawn slice
// realizes PnL against its proportional share of cost basis; the withdrawn
// token amounts sit in the contract as uncollected principal until an
// explicit COLLECT.
func applyDecrease(prev RunningState, raw RawEvent, price PoolPrice, market MarketParams) (Transition, error) {
	if raw.DeltaLiquidity == nil {
		return Transition{}, fmt.Errorf("%w: decrease at %s without liquidity delta", fixedpoint.ErrInvalidArgument, raw.Coordinate.Key())
	}

	poolPrice, err := fixedpoint.PoolPriceInQuote(price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	value, err := fixedpoint.TokenPairValueInQuote(raw.Amount0, raw.Amount1, price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	removed, err := fixedpoint.ProportionalCostBasis(prev.CostBasis, raw.DeltaLiquidity, prev.Liquidity)
	if err != nil {
		return Transition{}, fmt.Errorf("decrease at %s: %w", raw.Coordinate.Key(), err)
	}

	up0, up1, err := fixedpoint.UpdateUncollectedPrincipal(
		prev.UncollectedPrincipal0, prev.UncollectedPrincipal1,
		fixedpoint.KindDecrease, raw.Amount0, raw.Amount1, nil, nil)
	if err != nil {
		return Transition{}, err
	}

	deltaPnl := new(big.Int).Sub(value, removed)

	next := prev.Clone()
	next.Liquidity.Sub(next.Liquidity, raw.DeltaLiquidity)
	next.CostBasis.Sub(next.CostBasis, removed)
	next.Pnl.Add(next.Pnl, deltaPnl)
	next.UncollectedPrincipal0 = up0
	next.UncollectedPrincipal1 = up1

	return Transition{
		PoolPrice:      poolPrice,
		Token0Amount:   new(big.Int).Set(raw.Amount0),
		Token1Amount:   new(big.Int).Set(raw.Amount1),
		TokenValue:     value,
		DeltaCostBasis: new(big.Int).Neg(removed),
		CostBasisAfter: new(big.Int).Set(next.CostBasis),
		DeltaPnl:       deltaPnl,
		PnlAfter:       new(big.Int).Set(next.Pnl),
		Next:           next,
	}, nil
}

// applyCollect handles tokens physically leaving the contract. Collected
// amounts split into principal (previously decreased, already realized)
// and pure fees; only the fee portion becomes rewards. Collection itself
// changes neither cost basis nor PnL — fees were already part of position
// value before they were collected.
func applyCollect(prev RunningState, raw RawEvent, price PoolPrice, market MarketParams) (Transition, error) {
	poolPrice, err := fixedpoint.PoolPriceInQuote(price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	value, err := fixedpoint.TokenPairValueInQuote(raw.Amount0, raw.Amount1, price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
	if err != nil {
		return Transition{}, err
	}

	split, err := fixedpoint.SeparateFeesFromPrincipal(
		raw.Amount0, raw.Amount1,
		prev.UncollectedPrincipal0, prev.UncollectedPrincipal1)
	if err != nil {
		return Transition{}, err
	}

	up0, up1, err := fixedpoint.UpdateUncollectedPrincipal(
		prev.UncollectedPrincipal0, prev.UncollectedPrincipal1,
		fixedpoint.KindCollect, nil, nil, split.Principal0, split.Principal1)
	if err != nil {
		return Transition{}, fmt.Errorf("collect at %s: %w", raw.Coordinate.Key(), err)
	}

	var rewards []Reward
	if split.Fee0.Sign() > 0 {
		feeValue, err := fixedpoint.TokenPairValueInQuote(split.Fee0, new(big.Int), price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
		if err != nil {
			return Transition{}, err
		}
		rewards = append(rewards, Reward{Token: market.Token0, Amount: split.Fee0, Value: feeValue})
	}
	if split.Fee1.Sign() > 0 {
		feeValue, err := fixedpoint.TokenPairValueInQuote(new(big.Int), split.Fee1, price.SqrtPriceX96, market.QuoteIsToken0, market.Decimals0, market.Decimals1)
		if err != nil {
			return Transition{}, err
		}
		rewards = append(rewards, Reward{Token: market.Token1, Amount: split.Fee1, Value: feeValue})
	}

	next := prev.Clone()
	next.UncollectedPrincipal0 = up0
	next.UncollectedPrincipal1 = up1

	return Transition{
		PoolPrice:      poolPrice,
		Token0Amount:   new(big.Int).Set(raw.Amount0),
		Token1Amount:   new(big.Int).Set(raw.Amount1),
		TokenValue:     value,
		Rewards:        rewards,
		DeltaCostBasis: new(big.Int),
		CostBasisAfter: new(big.Int).Set(next.CostBasis),
		DeltaPnl:       new(big.Int),
		PnlAfter:       new(big.Int).Set(next.Pnl),
		Next:           next,
	}, nil
}
