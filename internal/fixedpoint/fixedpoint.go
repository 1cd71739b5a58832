// Package fixedpoint implements the integer financial primitives for
// concentrated-liquidity position accounting. All monetary values are
// arbitrary-precision integers (*big.Int) in the smallest unit of the
// relevant token; no floating point touches any stored financial field.
// Division always floors, and products are computed before quotients so
// no precision is lost in intermediate steps.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidArgument marks malformed or out-of-range input to a pure
// financial primitive. Never retried: the same input always fails the
// same way.
var ErrInvalidArgument = errors.New("invalid argument")

// q192 = 2^192, the denominator of a squared Q64.96 sqrt price.
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

var (
	zero = big.NewInt(0)
	ten  = big.NewInt(10)
)

// pow10 returns 10^decimals.
func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// PoolPriceInQuote converts a pool's sqrtPriceX96 into the price of one
// whole base token denominated in smallest quote-token units.
//
// sqrtPriceX96 encodes sqrt(rawToken1/rawToken0) in Q64.96. With token1
// as quote the price is sqrtP^2 * 10^decimals0 / 2^192; with token0 as
// quote the orientation inverts to 2^192 * 10^decimals1 / sqrtP^2.
func PoolPriceInQuote(sqrtPriceX96 *big.Int, quoteIsToken0 bool, decimals0, decimals1 uint8) (*big.Int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, fmt.Errorf("%w: sqrtPriceX96 must be positive", ErrInvalidArgument)
	}

	priceX192 := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	if quoteIsToken0 {
		// quote per whole token1 = 2^192 * 10^decimals1 / sqrtP^2
		num := new(big.Int).Mul(q192, pow10(decimals1))
		return num.Quo(num, priceX192), nil
	}

	// quote per whole token0 = sqrtP^2 * 10^decimals0 / 2^192
	num := new(big.Int).Mul(priceX192, pow10(decimals0))
	return num.Quo(num, q192), nil
}

// TokenPairValueInQuote converts a pair of raw token amounts into a single
// quote-denominated value at the given pool price. The base amount is
// converted in one multiply-before-divide step so its decimal scale cancels
// exactly:
//
//	quote = token1: value = amount1 + amount0 * sqrtP^2 / 2^192
//	quote = token0: value = amount0 + amount1 * 2^192 / sqrtP^2
func TokenPairValueInQuote(amount0, amount1, sqrtPriceX96 *big.Int, quoteIsToken0 bool, decimals0, decimals1 uint8) (*big.Int, error) {
	if amount0 == nil || amount1 == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrInvalidArgument)
	}
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative token amount", ErrInvalidArgument)
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil, fmt.Errorf("%w: sqrtPriceX96 must be positive", ErrInvalidArgument)
	}

	priceX192 := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	if quoteIsToken0 {
		converted := new(big.Int).Mul(amount1, q192)
		converted.Quo(converted, priceX192)
		return converted.Add(converted, amount0), nil
	}

	converted := new(big.Int).Mul(amount0, priceX192)
	converted.Quo(converted, q192)
	return converted.Add(converted, amount1), nil
}

// ProportionalCostBasis returns the slice of cost basis attributable to
// deltaLiquidity out of currentLiquidity: costBasis * delta / current,
// floored.
func ProportionalCostBasis(currentCostBasis, deltaLiquidity, currentLiquidity *big.Int) (*big.Int, error) {
	if currentCostBasis == nil || deltaLiquidity == nil || currentLiquidity == nil {
		return nil, fmt.Errorf("%w: nil input", ErrInvalidArgument)
	}
	if currentLiquidity.Sign() == 0 {
		return nil, fmt.Errorf("%w: current liquidity is zero", ErrInvalidArgument)
	}
	if deltaLiquidity.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative liquidity delta", ErrInvalidArgument)
	}
	if deltaLiquidity.Cmp(currentLiquidity) > 0 {
		return nil, fmt.Errorf("%w: liquidity delta %s exceeds current liquidity %s",
			ErrInvalidArgument, deltaLiquidity, currentLiquidity)
	}
	if deltaLiquidity.Sign() == 0 {
		return new(big.Int), nil
	}

	result := new(big.Int).Mul(currentCostBasis, deltaLiquidity)
	return result.Quo(result, currentLiquidity), nil
}

// FeePrincipalSplit is the outcome of separating a collect into the fee
// portion and the principal portion per token.
type FeePrincipalSplit struct {
	Fee0       *big.Int
	Fee1       *big.Int
	Principal0 *big.Int
	Principal1 *big.Int
}

// SeparateFeesFromPrincipal splits collected token amounts into principal
// (previously decreased but still sitting in the contract) and pure fees.
// principal_i = min(collected_i, uncollectedPrincipal_i); the remainder is
// fee income.
func SeparateFeesFromPrincipal(collected0, collected1, uncollectedPrincipal0, uncollectedPrincipal1 *big.Int) (FeePrincipalSplit, error) {
	for _, v := range []*big.Int{collected0, collected1, uncollectedPrincipal0, uncollectedPrincipal1} {
		if v == nil {
			return FeePrincipalSplit{}, fmt.Errorf("%w: nil input", ErrInvalidArgument)
		}
		if v.Sign() < 0 {
			return FeePrincipalSplit{}, fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, v)
		}
	}

	principal0 := bigMin(collected0, uncollectedPrincipal0)
	principal1 := bigMin(collected1, uncollectedPrincipal1)

	return FeePrincipalSplit{
		Fee0:       new(big.Int).Sub(collected0, principal0),
		Fee1:       new(big.Int).Sub(collected1, principal1),
		Principal0: principal0,
		Principal1: principal1,
	}, nil
}

// EventKind classifies the position state transition driving an
// uncollected-principal update.
type EventKind int

const (
	KindIncrease EventKind = iota
	KindDecrease
	KindCollect
)

// UpdateUncollectedPrincipal advances the uncollected-principal pool across
// one event. Increases leave the pool untouched, decreases add the withdrawn
// amounts, collects subtract the principal portion actually taken out of the
// contract. A collect that would drive the pool negative signals an
// upstream ordering bug and is rejected.
func UpdateUncollectedPrincipal(prev0, prev1 *big.Int, kind EventKind, amount0, amount1, principalCollected0, principalCollected1 *big.Int) (after0, after1 *big.Int, err error) {
	if prev0 == nil || prev1 == nil {
		return nil, nil, fmt.Errorf("%w: nil principal pool", ErrInvalidArgument)
	}
	if prev0.Sign() < 0 || prev1.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative principal pool", ErrInvalidArgument)
	}

	switch kind {
	case KindIncrease:
		return new(big.Int).Set(prev0), new(big.Int).Set(prev1), nil

	case KindDecrease:
		if amount0 == nil || amount1 == nil || amount0.Sign() < 0 || amount1.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: decrease amounts must be non-negative", ErrInvalidArgument)
		}
		return new(big.Int).Add(prev0, amount0), new(big.Int).Add(prev1, amount1), nil

	case KindCollect:
		if principalCollected0 == nil || principalCollected1 == nil ||
			principalCollected0.Sign() < 0 || principalCollected1.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: collected principal must be non-negative", ErrInvalidArgument)
		}
		if principalCollected0.Cmp(prev0) > 0 || principalCollected1.Cmp(prev1) > 0 {
			return nil, nil, fmt.Errorf("%w: collect takes more principal (%s, %s) than pooled (%s, %s)",
				ErrInvalidArgument, principalCollected0, principalCollected1, prev0, prev1)
		}
		return new(big.Int).Sub(prev0, principalCollected0), new(big.Int).Sub(prev1, principalCollected1), nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown event kind %d", ErrInvalidArgument, kind)
	}
}

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
