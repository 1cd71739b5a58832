package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/persistence"
)

// Store interfaces consumed by the orchestrator. The persistence package
// provides the Postgres implementations; tests swap in in-memory fakes.

type EventStore interface {
	Append(ctx context.Context, evt *ledger.Event) (*ledger.Event, error)
	LatestEvent(ctx context.Context, positionID uuid.UUID) (*ledger.Event, error)
	ListAscending(ctx context.Context, positionID uuid.UUID) ([]*ledger.Event, error)
	DeleteTail(ctx context.Context, positionID uuid.UUID, fromBlock uint64) (int64, error)
	DeleteAll(ctx context.Context, positionID uuid.UUID) (int64, error)
}

type PositionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*persistence.Position, error)
	UpdateSnapshot(ctx context.Context, id uuid.UUID, snap persistence.PositionSnapshot) error
}

type SyncStateStore interface {
	Get(ctx context.Context, positionID uuid.UUID) (*persistence.SyncState, error)
	Touch(ctx context.Context, positionID uuid.UUID, at time.Time, by string) error
	ClearMissingEvents(ctx context.Context, positionID uuid.UUID) error
}

type AprStore interface {
	ReplacePeriods(ctx context.Context, positionID uuid.UUID, periods []apr.Period) error
}
