package fixedpoint

import (
	"fmt"
	"math/big"
)

// MaxTick bounds the usable tick range; sqrt(1.0001^MaxTick) still fits a
// uint160 sqrt price.
const MaxTick = 887272

var (
	tickBaseNum = big.NewInt(10001)
	tickBaseDen = big.NewInt(10000)
)

// SqrtPriceAtTick returns the Q64.96 square root of 1.0001^tick, computed
// with integer exponentiation by squaring in Q192 and an integer square
// root at the end. Deterministic, floor-rounded at every step.
func SqrtPriceAtTick(tick int32) (*big.Int, error) {
	if tick > MaxTick || tick < -MaxTick {
		return nil, fmt.Errorf("%w: tick %d out of range", ErrInvalidArgument, tick)
	}

	exp := uint32(tick)
	if tick < 0 {
		exp = uint32(-tick)
	}

	// priceX192 = 1.0001^|tick| in Q192.
	base := new(big.Int).Mul(tickBaseNum, q192)
	base.Quo(base, tickBaseDen)
	priceX192 := powQ192(base, exp)

	if tick < 0 {
		inv := new(big.Int).Mul(q192, q192)
		priceX192 = inv.Quo(inv, priceX192)
	}

	// sqrt(p * 2^192) = sqrt(p) * 2^96.
	return new(big.Int).Sqrt(priceX192), nil
}

// powQ192 raises a Q192 fixed-point base to an integer power, flooring
// after each multiplication.
func powQ192(base *big.Int, exp uint32) *big.Int {
	result := new(big.Int).Set(q192)
	b := new(big.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, b)
			result.Quo(result, q192)
		}
		b.Mul(b, b)
		b.Quo(b, q192)
		exp >>= 1
	}
	return result
}

// AmountsForLiquidity converts a liquidity amount between two range
// bounds into the token amounts backing it at the current pool price.
// The current price is clamped into the range: below the range the
// position is all token0, above it all token1.
func AmountsForLiquidity(sqrtPriceX96, sqrtLowerX96, sqrtUpperX96, liquidity *big.Int) (*big.Int, *big.Int, error) {
	if sqrtPriceX96 == nil || sqrtLowerX96 == nil || sqrtUpperX96 == nil || liquidity == nil {
		return nil, nil, fmt.Errorf("%w: nil input", ErrInvalidArgument)
	}
	if sqrtLowerX96.Sign() <= 0 || sqrtUpperX96.Cmp(sqrtLowerX96) <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid range bounds [%s, %s]", ErrInvalidArgument, sqrtLowerX96, sqrtUpperX96)
	}
	if liquidity.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative liquidity %s", ErrInvalidArgument, liquidity)
	}
	if liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	cur := sqrtPriceX96
	if cur.Cmp(sqrtLowerX96) < 0 {
		cur = sqrtLowerX96
	}
	if cur.Cmp(sqrtUpperX96) > 0 {
		cur = sqrtUpperX96
	}

	// amount0 = L * 2^96 * (upper - cur) / (upper * cur)
	amount0 := new(big.Int).Sub(sqrtUpperX96, cur)
	amount0.Mul(amount0, liquidity)
	amount0.Lsh(amount0, 96)
	denom := new(big.Int).Mul(sqrtUpperX96, cur)
	amount0.Quo(amount0, denom)

	// amount1 = L * (cur - lower) / 2^96
	amount1 := new(big.Int).Sub(cur, sqrtLowerX96)
	amount1.Mul(amount1, liquidity)
	amount1.Rsh(amount1, 96)

	return amount0, amount1, nil
}
