package syncer

import "errors"

// ErrSync marks any failure inside a sync run. The wrapped message names
// the stage that failed.
var ErrSync = errors.New("position sync failed")
