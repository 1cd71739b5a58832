package ledger

import "errors"

// ErrSequence marks a ledger-chain integrity violation: a missing or
// mismatched previous event, cross-position linkage, or a non-monotonic
// coordinate. It indicates a replay-ordering bug and is fatal for the
// sync that hits it.
var ErrSequence = errors.New("ledger sequence violation")
