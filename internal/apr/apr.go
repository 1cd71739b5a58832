// Package apr computes annualized fee returns and time-weighted cost
// basis over a position's ledger history. Like the rest of the financial
// core, everything is integer arithmetic; percent values exist only as a
// display conversion and never feed back into stored fields.
package apr

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/fixedpoint"
)

const (
	// SecondsPerYear uses a 365.25-day year.
	SecondsPerYear = 31557600

	// BpsScale converts a ratio into basis points.
	BpsScale = 10000
)

// DurationSeconds returns the whole seconds between start and end,
// flooring sub-second remainders.
func DurationSeconds(start, end time.Time) (int64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: end %s before start %s", fixedpoint.ErrInvalidArgument, end, start)
	}
	return end.Sub(start).Milliseconds() / 1000, nil
}

// AprBps annualizes fee income against a cost basis over a duration:
// floor(feeValue * SecondsPerYear * 10000 / (costBasis * durationSeconds)).
func AprBps(collectedFeeValue, costBasis *big.Int, durationSeconds int64) (int64, error) {
	if collectedFeeValue == nil || costBasis == nil {
		return 0, fmt.Errorf("%w: nil input", fixedpoint.ErrInvalidArgument)
	}
	if collectedFeeValue.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative fee value %s", fixedpoint.ErrInvalidArgument, collectedFeeValue)
	}
	if costBasis.Sign() == 0 {
		return 0, fmt.Errorf("%w: cost basis is zero", fixedpoint.ErrInvalidArgument)
	}
	if durationSeconds <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration %d", fixedpoint.ErrInvalidArgument, durationSeconds)
	}
	if collectedFeeValue.Sign() == 0 {
		// Avoids a pointless big-integer division on the common idle path.
		return 0, nil
	}

	num := new(big.Int).Mul(collectedFeeValue, big.NewInt(SecondsPerYear))
	num.Mul(num, big.NewInt(BpsScale))

	denom := new(big.Int).Mul(costBasis, big.NewInt(durationSeconds))
	num.Quo(num, denom)

	return num.Int64(), nil
}

// AverageCostBasis returns the floored arithmetic mean of the inputs.
func AverageCostBasis(values []*big.Int) (*big.Int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty input", fixedpoint.ErrInvalidArgument)
	}

	sum := new(big.Int)
	for i, v := range values {
		if v == nil {
			return nil, fmt.Errorf("%w: nil value at index %d", fixedpoint.ErrInvalidArgument, i)
		}
		sum.Add(sum, v)
	}
	return sum.Quo(sum, big.NewInt(int64(len(values)))), nil
}

// CostBasisPoint is one ledger event's running cost basis at its timestamp.
type CostBasisPoint struct {
	Timestamp      time.Time
	CostBasisAfter *big.Int
}

// TimeWeightedCostBasis weights each point's cost basis by the wall-clock
// duration until the next point. A single point is returned unchanged.
// Points must be strictly chronological and span a non-zero duration.
func TimeWeightedCostBasis(points []CostBasisPoint) (*big.Int, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: empty input", fixedpoint.ErrInvalidArgument)
	}
	if len(points) == 1 {
		if points[0].CostBasisAfter == nil {
			return nil, fmt.Errorf("%w: nil cost basis", fixedpoint.ErrInvalidArgument)
		}
		return new(big.Int).Set(points[0].CostBasisAfter), nil
	}

	weighted := new(big.Int)
	totalSeconds := int64(0)

	for i := 0; i < len(points)-1; i++ {
		cur, next := points[i], points[i+1]
		if cur.CostBasisAfter == nil {
			return nil, fmt.Errorf("%w: nil cost basis at index %d", fixedpoint.ErrInvalidArgument, i)
		}
		if !next.Timestamp.After(cur.Timestamp) {
			return nil, fmt.Errorf("%w: points not strictly chronological at index %d", fixedpoint.ErrInvalidArgument, i+1)
		}

		seconds, err := DurationSeconds(cur.Timestamp, next.Timestamp)
		if err != nil {
			return nil, err
		}
		totalSeconds += seconds

		term := new(big.Int).Mul(cur.CostBasisAfter, big.NewInt(seconds))
		weighted.Add(weighted, term)
	}

	if totalSeconds == 0 {
		return nil, fmt.Errorf("%w: zero total duration", fixedpoint.ErrInvalidArgument)
	}
	return weighted.Quo(weighted, big.NewInt(totalSeconds)), nil
}

// PercentToBps converts a display percentage to basis points, rounding to
// the nearest point.
func PercentToBps(percent float64) int64 {
	return int64(math.Round(percent * 100))
}

// BpsToPercent converts basis points to a display percentage. Display only:
// the float result never enters stored financial computation.
func BpsToPercent(bps int64) float64 {
	return float64(bps) / 100
}
