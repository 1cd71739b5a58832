package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// SyncState tracks per-position sync bookkeeping: when the position was
// last synced, by which actor, and the buffer of externally reported
// events awaiting merge into the next replay.
type SyncState struct {
	PositionID    uuid.UUID
	LastSyncAt    time.Time
	LastSyncBy    string
	MissingEvents []ledger.RawEvent
}

type SyncStateStore struct {
	db *sql.DB
}

func NewSyncStateStore(db *sql.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Get returns the sync state, or nil if the position has never synced and
// holds no buffered events.
func (s *SyncStateStore) Get(ctx context.Context, positionID uuid.UUID) (*SyncState, error) {
	var (
		st     SyncState
		buffer []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT position_id, last_sync_at, last_sync_by, missing_events
		FROM ledger.sync_state
		WHERE position_id = $1`, positionID).
		Scan(&st.PositionID, &st.LastSyncAt, &st.LastSyncBy, &buffer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state for %s: %w", positionID, err)
	}
	st.LastSyncAt = st.LastSyncAt.UTC()
	if st.MissingEvents, err = decodeRawEvents(buffer); err != nil {
		return nil, err
	}
	return &st, nil
}

// Touch records a completed sync. Buffered events are left alone; clearing
// them is a separate, explicit step after they merge into the chain.
func (s *SyncStateStore) Touch(ctx context.Context, positionID uuid.UUID, at time.Time, by string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger.sync_state (position_id, last_sync_at, last_sync_by, missing_events)
		VALUES ($1, $2, $3, '[]'::jsonb)
		ON CONFLICT (position_id) DO UPDATE SET
			last_sync_at = EXCLUDED.last_sync_at,
			last_sync_by = EXCLUDED.last_sync_by`,
		positionID, at, by)
	if err != nil {
		return fmt.Errorf("touch sync state for %s: %w", positionID, err)
	}
	return nil
}

// BufferMissingEvents appends externally reported events to the merge
// buffer. Events already buffered at the same coordinate are kept; the
// first report wins.
func (s *SyncStateStore) BufferMissingEvents(ctx context.Context, positionID uuid.UUID, events []ledger.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin buffer tx: %w", err)
	}
	defer tx.Rollback()

	var buffer []byte
	err = tx.QueryRowContext(ctx, `
		SELECT missing_events FROM ledger.sync_state
		WHERE position_id = $1 FOR UPDATE`, positionID).Scan(&buffer)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load buffer for %s: %w", positionID, err)
	}

	existing, err := decodeRawEvents(buffer)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(existing))
	for _, ev := range existing {
		seen[ev.Coordinate.Key()] = struct{}{}
	}
	merged := existing
	for _, ev := range events {
		if _, dup := seen[ev.Coordinate.Key()]; dup {
			continue
		}
		seen[ev.Coordinate.Key()] = struct{}{}
		merged = append(merged, ev)
	}

	encoded, err := encodeRawEvents(merged)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger.sync_state (position_id, last_sync_at, last_sync_by, missing_events)
		VALUES ($1, to_timestamp(0), '', $2)
		ON CONFLICT (position_id) DO UPDATE SET
			missing_events = EXCLUDED.missing_events`,
		positionID, encoded)
	if err != nil {
		return fmt.Errorf("store buffer for %s: %w", positionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit buffer: %w", err)
	}
	return nil
}

// ClearMissingEvents empties the merge buffer after a successful replay.
func (s *SyncStateStore) ClearMissingEvents(ctx context.Context, positionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ledger.sync_state SET missing_events = '[]'::jsonb
		WHERE position_id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("clear buffer for %s: %w", positionID, err)
	}
	return nil
}
