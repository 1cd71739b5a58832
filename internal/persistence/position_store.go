package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("persistence: not found")

// Position is the stored position record: the immutable identity plus the
// denormalized snapshot fields recomputed after each sync.
type Position struct {
	ID                 uuid.UUID
	ChainID            uint64
	Protocol           string
	ProtocolPositionID string
	Pool               string
	Token0             string
	Token1             string
	Decimals0          uint8
	Decimals1          uint8
	QuoteIsToken0      bool
	RangeLower         int32
	RangeUpper         int32

	IsActive         bool
	CurrentValue     *big.Int
	CurrentCostBasis *big.Int
	RealizedPnl      *big.Int
	UnrealizedPnl    *big.Int
	CollectedFees    *big.Int
	UnclaimedFees    *big.Int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref projects the stored record into the processing-side identity.
func (p *Position) Ref() ledger.PositionRef {
	return ledger.PositionRef{
		PositionID:         p.ID,
		ChainID:            p.ChainID,
		ProtocolPositionID: p.ProtocolPositionID,
		Pool:               p.Pool,
		Market: ledger.MarketParams{
			QuoteIsToken0: p.QuoteIsToken0,
			Decimals0:     p.Decimals0,
			Decimals1:     p.Decimals1,
			Token0:        p.Token0,
			Token1:        p.Token1,
		},
		RangeLower: p.RangeLower,
		RangeUpper: p.RangeUpper,
	}
}

// PositionSnapshot is the derived financial summary written back after a
// successful sync.
type PositionSnapshot struct {
	IsActive         bool
	CurrentValue     *big.Int
	CurrentCostBasis *big.Int
	RealizedPnl      *big.Int
	UnrealizedPnl    *big.Int
	CollectedFees    *big.Int
	UnclaimedFees    *big.Int
}

type PositionStore struct {
	db *sql.DB
}

func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

const positionColumns = `id, chain_id, protocol, protocol_position_id, pool,
	token0, token1, decimals0, decimals1, quote_is_token0, range_lower, range_upper,
	is_active, current_value::text, current_cost_basis::text, realized_pnl::text,
	unrealized_pnl::text, collected_fees::text, unclaimed_fees::text,
	created_at, updated_at`

// Upsert registers a position, keyed by (chain_id, protocol,
// protocol_position_id). Re-registering an existing position only refreshes
// the mutable identity fields; snapshot columns are untouched.
func (s *PositionStore) Upsert(ctx context.Context, p *Position) (*Position, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ledger.positions
			(id, chain_id, protocol, protocol_position_id, pool,
			 token0, token1, decimals0, decimals1, quote_is_token0,
			 range_lower, range_upper, is_active,
			 current_value, current_cost_basis, realized_pnl,
			 unrealized_pnl, collected_fees, unclaimed_fees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE,
			0, 0, 0, 0, 0, 0)
		ON CONFLICT (chain_id, protocol, protocol_position_id) DO UPDATE SET
			pool = EXCLUDED.pool,
			range_lower = EXCLUDED.range_lower,
			range_upper = EXCLUDED.range_upper,
			updated_at = now()
		RETURNING `+positionColumns,
		p.ID, int64(p.ChainID), p.Protocol, p.ProtocolPositionID, p.Pool,
		p.Token0, p.Token1, int16(p.Decimals0), int16(p.Decimals1), p.QuoteIsToken0,
		p.RangeLower, p.RangeUpper,
	)
	return scanPosition(row)
}

func (s *PositionStore) Get(ctx context.Context, id uuid.UUID) (*Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM ledger.positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListActive returns active positions on one chain, the sync scheduler's
// work set.
func (s *PositionStore) ListActive(ctx context.Context, chainID uint64) ([]*Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM ledger.positions
		WHERE chain_id = $1 AND is_active
		ORDER BY created_at`, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("list active positions on chain %d: %w", chainID, err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateSnapshot writes the post-sync financial summary.
func (s *PositionStore) UpdateSnapshot(ctx context.Context, id uuid.UUID, snap PositionSnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger.positions SET
			is_active = $2,
			current_value = $3::numeric,
			current_cost_basis = $4::numeric,
			realized_pnl = $5::numeric,
			unrealized_pnl = $6::numeric,
			collected_fees = $7::numeric,
			unclaimed_fees = $8::numeric,
			updated_at = now()
		WHERE id = $1`,
		id, snap.IsActive,
		bigToSQL(snap.CurrentValue), bigToSQL(snap.CurrentCostBasis),
		bigToSQL(snap.RealizedPnl), bigToSQL(snap.UnrealizedPnl),
		bigToSQL(snap.CollectedFees), bigToSQL(snap.UnclaimedFees),
	)
	if err != nil {
		return fmt.Errorf("update snapshot for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanPosition(row rowScanner) (*Position, error) {
	var (
		p         Position
		chainID   int64
		dec0      int16
		dec1      int16
		value     string
		costBasis string
		realized  string
		unreal    string
		collected string
		unclaimed string
	)
	err := row.Scan(
		&p.ID, &chainID, &p.Protocol, &p.ProtocolPositionID, &p.Pool,
		&p.Token0, &p.Token1, &dec0, &dec1, &p.QuoteIsToken0,
		&p.RangeLower, &p.RangeUpper, &p.IsActive,
		&value, &costBasis, &realized, &unreal, &collected, &unclaimed,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ChainID = uint64(chainID)
	p.Decimals0 = uint8(dec0)
	p.Decimals1 = uint8(dec1)

	if p.CurrentValue, err = bigFromSQL(value); err != nil {
		return nil, err
	}
	if p.CurrentCostBasis, err = bigFromSQL(costBasis); err != nil {
		return nil, err
	}
	if p.RealizedPnl, err = bigFromSQL(realized); err != nil {
		return nil, err
	}
	if p.UnrealizedPnl, err = bigFromSQL(unreal); err != nil {
		return nil, err
	}
	if p.CollectedFees, err = bigFromSQL(collected); err != nil {
		return nil, err
	}
	if p.UnclaimedFees, err = bigFromSQL(unclaimed); err != nil {
		return nil, err
	}
	return &p, nil
}
