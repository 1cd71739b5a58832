package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

const eventColumns = `id, position_id, previous_id, protocol, event_type,
	block_number, tx_index, log_index, tx_hash, event_time, input_hash,
	pool_price::text, token0_amount::text, token1_amount::text, token_value::text,
	delta_cost_basis::text, cost_basis_after::text, delta_pnl::text, pnl_after::text,
	rewards, config, state`

// EventStore persists a position's hash-linked event chain in
// ledger.events. Appends run under a per-position advisory lock so linkage
// validation and the insert are atomic against concurrent syncs.
type EventStore struct {
	db        *sql.DB
	validator *ledger.ChainValidator
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db, validator: ledger.NewChainValidator()}
}

// Append links evt to the current chain tip and inserts it. The store
// assigns the event id and previous-id; callers provide everything else.
// A duplicate input hash or a coordinate at or before the tip reports
// ledger.ErrSequence.
func (s *EventStore) Append(ctx context.Context, evt *ledger.Event) (*ledger.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockPosition(ctx, tx, evt.PositionID); err != nil {
		return nil, err
	}

	tip, err := latestEventTx(ctx, tx, evt.PositionID)
	if err != nil {
		return nil, err
	}

	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	evt.PreviousID = nil
	if tip != nil {
		evt.PreviousID = &tip.ID
	}

	if err := s.validator.ValidateAppend(tip, evt); err != nil {
		return nil, err
	}

	rewards, err := encodeRewards(evt.Rewards)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger.events
			(id, position_id, previous_id, protocol, event_type,
			 block_number, tx_index, log_index, tx_hash, event_time, input_hash,
			 pool_price, token0_amount, token1_amount, token_value,
			 delta_cost_basis, cost_basis_after, delta_pnl, pnl_after,
			 rewards, config, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12::numeric, $13::numeric, $14::numeric, $15::numeric,
			$16::numeric, $17::numeric, $18::numeric, $19::numeric,
			$20, $21, $22)`,
		evt.ID, evt.PositionID, evt.PreviousID, evt.Protocol, evt.EventType.String(),
		int64(evt.Coordinate.BlockNumber), int32(evt.Coordinate.TransactionIndex), int32(evt.Coordinate.LogIndex),
		evt.TransactionHash, evt.Timestamp, evt.InputHash,
		bigToSQL(evt.PoolPrice), bigToSQL(evt.Token0Amount), bigToSQL(evt.Token1Amount), bigToSQL(evt.TokenValue),
		bigToSQL(evt.DeltaCostBasis), bigToSQL(evt.CostBasisAfter), bigToSQL(evt.DeltaPnl), bigToSQL(evt.PnlAfter),
		rewards, evt.Config, evt.State,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("position %s input hash %s already appended: %w",
				evt.PositionID, evt.InputHash, ledger.ErrSequence)
		}
		return nil, fmt.Errorf("insert event %s: %w", evt.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return evt, nil
}

// LatestEvent returns the chain tip for a position, or nil on an empty chain.
func (s *EventStore) LatestEvent(ctx context.Context, positionID uuid.UUID) (*ledger.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM ledger.events
		WHERE position_id = $1
		ORDER BY block_number DESC, tx_index DESC, log_index DESC
		LIMIT 1`, positionID)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return evt, err
}

// ListAscending returns the full chain in replay order.
func (s *EventStore) ListAscending(ctx context.Context, positionID uuid.UUID) ([]*ledger.Event, error) {
	return s.list(ctx, positionID, "ASC")
}

// ListDescending returns the chain newest-first, the read-path ordering.
func (s *EventStore) ListDescending(ctx context.Context, positionID uuid.UUID) ([]*ledger.Event, error) {
	return s.list(ctx, positionID, "DESC")
}

func (s *EventStore) list(ctx context.Context, positionID uuid.UUID, dir string) ([]*ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM ledger.events
		WHERE position_id = $1
		ORDER BY block_number `+dir+`, tx_index `+dir+`, log_index `+dir,
		positionID)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", positionID, err)
	}
	defer rows.Close()

	var out []*ledger.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// DeleteTail removes every event at or after fromBlock so the suffix can
// be replayed. Returns the number of deleted events.
func (s *EventStore) DeleteTail(ctx context.Context, positionID uuid.UUID, fromBlock uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete-tail tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockPosition(ctx, tx, positionID); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM ledger.events
		WHERE position_id = $1 AND block_number >= $2`,
		positionID, int64(fromBlock))
	if err != nil {
		return 0, fmt.Errorf("delete tail for %s from block %d: %w", positionID, fromBlock, err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete-tail: %w", err)
	}
	return n, nil
}

// DeleteAll drops the position's entire chain, the full-resync path.
func (s *EventStore) DeleteAll(ctx context.Context, positionID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger.events WHERE position_id = $1`, positionID)
	if err != nil {
		return 0, fmt.Errorf("delete all events for %s: %w", positionID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// lockPosition takes the per-position transaction-scoped advisory lock.
func lockPosition(ctx context.Context, tx *sql.Tx, positionID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, positionID.String()); err != nil {
		return fmt.Errorf("lock position %s: %w", positionID, err)
	}
	return nil
}

func latestEventTx(ctx context.Context, tx *sql.Tx, positionID uuid.UUID) (*ledger.Event, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM ledger.events
		WHERE position_id = $1
		ORDER BY block_number DESC, tx_index DESC, log_index DESC
		LIMIT 1`, positionID)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return evt, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*ledger.Event, error) {
	var (
		evt        ledger.Event
		eventType  string
		block      int64
		txIdx      int32
		logIdx     int32
		poolPrice  string
		amount0    string
		amount1    string
		tokenValue string
		deltaCB    string
		cbAfter    string
		deltaPnl   string
		pnlAfter   string
		rewards    []byte
	)
	err := row.Scan(
		&evt.ID, &evt.PositionID, &evt.PreviousID, &evt.Protocol, &eventType,
		&block, &txIdx, &logIdx, &evt.TransactionHash, &evt.Timestamp, &evt.InputHash,
		&poolPrice, &amount0, &amount1, &tokenValue,
		&deltaCB, &cbAfter, &deltaPnl, &pnlAfter,
		&rewards, &evt.Config, &evt.State,
	)
	if err != nil {
		return nil, err
	}

	evt.EventType = eventTypeFromString(eventType)
	evt.Coordinate = ledger.Coordinate{
		BlockNumber:      uint64(block),
		TransactionIndex: uint32(txIdx),
		LogIndex:         uint32(logIdx),
	}
	evt.Timestamp = evt.Timestamp.UTC()

	if evt.PoolPrice, err = bigFromSQL(poolPrice); err != nil {
		return nil, err
	}
	if evt.Token0Amount, err = bigFromSQL(amount0); err != nil {
		return nil, err
	}
	if evt.Token1Amount, err = bigFromSQL(amount1); err != nil {
		return nil, err
	}
	if evt.TokenValue, err = bigFromSQL(tokenValue); err != nil {
		return nil, err
	}
	if evt.DeltaCostBasis, err = bigFromSQL(deltaCB); err != nil {
		return nil, err
	}
	if evt.CostBasisAfter, err = bigFromSQL(cbAfter); err != nil {
		return nil, err
	}
	if evt.DeltaPnl, err = bigFromSQL(deltaPnl); err != nil {
		return nil, err
	}
	if evt.PnlAfter, err = bigFromSQL(pnlAfter); err != nil {
		return nil, err
	}
	if evt.Rewards, err = decodeRewards(rewards); err != nil {
		return nil, err
	}
	return &evt, nil
}
