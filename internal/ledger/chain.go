package ledger

import (
	"fmt"
	"math/big"
)

// ChainValidator enforces the linked-list invariants of a position's
// event chain at the append boundary: exactly one root, strictly
// ascending coordinates, and delta/after bookkeeping consistency.
type ChainValidator struct{}

func NewChainValidator() *ChainValidator {
	return &ChainValidator{}
}

// ValidateAppend checks that next may be appended after prev. prev is nil
// only when next is the chain root.
func (v *ChainValidator) ValidateAppend(prev, next *Event) error {
	if next == nil {
		return fmt.Errorf("%w: nil event", ErrSequence)
	}

	if prev == nil {
		if next.PreviousID != nil {
			return fmt.Errorf("%w: event at %s references previous %s but the chain is empty",
				ErrSequence, next.Coordinate.Key(), next.PreviousID)
		}
		return validateBookkeeping(nil, next)
	}

	if next.PreviousID == nil {
		return fmt.Errorf("%w: event at %s would create a second chain root (existing tip %s)",
			ErrSequence, next.Coordinate.Key(), prev.ID)
	}
	if *next.PreviousID != prev.ID {
		return fmt.Errorf("%w: event at %s links to %s, expected chain tip %s",
			ErrSequence, next.Coordinate.Key(), next.PreviousID, prev.ID)
	}
	if prev.PositionID != next.PositionID {
		return fmt.Errorf("%w: event at %s crosses positions (%s -> %s)",
			ErrSequence, next.Coordinate.Key(), prev.PositionID, next.PositionID)
	}
	if prev.Protocol != next.Protocol {
		return fmt.Errorf("%w: event at %s crosses protocols (%s -> %s)",
			ErrSequence, next.Coordinate.Key(), prev.Protocol, next.Protocol)
	}
	if !prev.Coordinate.Before(next.Coordinate) {
		return fmt.Errorf("%w: coordinate %s does not advance past chain tip %s",
			ErrSequence, next.Coordinate.Key(), prev.Coordinate.Key())
	}

	return validateBookkeeping(prev, next)
}

// validateBookkeeping checks after = priorAfter + delta for cost basis
// and PnL.
func validateBookkeeping(prev, next *Event) error {
	priorCostBasis := new(big.Int)
	priorPnl := new(big.Int)
	if prev != nil {
		priorCostBasis.Set(prev.CostBasisAfter)
		priorPnl.Set(prev.PnlAfter)
	}

	wantCostBasis := priorCostBasis.Add(priorCostBasis, next.DeltaCostBasis)
	if next.CostBasisAfter.Cmp(wantCostBasis) != 0 {
		return fmt.Errorf("%w: event at %s cost basis mismatch: after=%s, prior+delta=%s",
			ErrSequence, next.Coordinate.Key(), next.CostBasisAfter, wantCostBasis)
	}

	wantPnl := priorPnl.Add(priorPnl, next.DeltaPnl)
	if next.PnlAfter.Cmp(wantPnl) != 0 {
		return fmt.Errorf("%w: event at %s pnl mismatch: after=%s, prior+delta=%s",
			ErrSequence, next.Coordinate.Key(), next.PnlAfter, wantPnl)
	}

	return nil
}
