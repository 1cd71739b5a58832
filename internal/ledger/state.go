package ledger

import "math/big"

// RunningState is the cumulative financial state a processor consumes and
// produces. Each event's processor is a pure function of the previous
// running state, the raw event, and the historic pool price — replaying
// the same inputs always rebuilds the same state.
type RunningState struct {
	Liquidity             *big.Int
	CostBasis             *big.Int
	Pnl                   *big.Int
	UncollectedPrincipal0 *big.Int
	UncollectedPrincipal1 *big.Int
}

// ZeroState is the running state before a position's first event.
func ZeroState() RunningState {
	return RunningState{
		Liquidity:             new(big.Int),
		CostBasis:             new(big.Int),
		Pnl:                   new(big.Int),
		UncollectedPrincipal0: new(big.Int),
		UncollectedPrincipal1: new(big.Int),
	}
}

// Clone deep-copies the state so processors can build the next state
// without aliasing the previous one.
func (s RunningState) Clone() RunningState {
	return RunningState{
		Liquidity:             new(big.Int).Set(s.Liquidity),
		CostBasis:             new(big.Int).Set(s.CostBasis),
		Pnl:                   new(big.Int).Set(s.Pnl),
		UncollectedPrincipal0: new(big.Int).Set(s.UncollectedPrincipal0),
		UncollectedPrincipal1: new(big.Int).Set(s.UncollectedPrincipal1),
	}
}
