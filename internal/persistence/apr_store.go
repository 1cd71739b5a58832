package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
)

// AprStore persists the derived APR period series. The series is fully
// recomputed from the event chain on every sync, so writes replace the
// whole set rather than patching rows.
type AprStore struct {
	db *sql.DB
}

func NewAprStore(db *sql.DB) *AprStore {
	return &AprStore{db: db}
}

// ReplacePeriods atomically swaps a position's period series.
func (s *AprStore) ReplacePeriods(ctx context.Context, positionID uuid.UUID, periods []apr.Period) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apr replace tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ledger.apr_periods WHERE position_id = $1`, positionID); err != nil {
		return fmt.Errorf("clear apr periods for %s: %w", positionID, err)
	}

	if len(periods) > 0 {
		const cols = 9
		values := make([]string, 0, len(periods))
		args := make([]any, 0, len(periods)*cols)
		for i, p := range periods {
			base := i * cols
			values = append(values, fmt.Sprintf(
				"($%d, $%d, $%d, $%d, $%d, $%d, $%d::numeric, $%d::numeric, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
			))
			args = append(args,
				positionID, p.StartEventID, p.EndEventID,
				p.StartTime, p.EndTime, p.DurationSeconds,
				bigToSQL(p.CostBasis), bigToSQL(p.CollectedFeeValue), p.AprBps,
			)
		}
		query := `INSERT INTO ledger.apr_periods
			(position_id, start_event_id, end_event_id,
			 start_time, end_time, duration_seconds,
			 cost_basis, collected_fee_value, apr_bps)
			VALUES ` + strings.Join(values, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert apr periods for %s: %w", positionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apr replace: %w", err)
	}
	return nil
}

// ListPeriods returns a position's period series in chronological order.
func (s *AprStore) ListPeriods(ctx context.Context, positionID uuid.UUID) ([]apr.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, start_event_id, end_event_id,
			start_time, end_time, duration_seconds,
			cost_basis::text, collected_fee_value::text, apr_bps
		FROM ledger.apr_periods
		WHERE position_id = $1
		ORDER BY start_time`, positionID)
	if err != nil {
		return nil, fmt.Errorf("list apr periods for %s: %w", positionID, err)
	}
	defer rows.Close()

	var out []apr.Period
	for rows.Next() {
		var (
			p         apr.Period
			costBasis string
			feeValue  string
		)
		if err := rows.Scan(
			&p.PositionID, &p.StartEventID, &p.EndEventID,
			&p.StartTime, &p.EndTime, &p.DurationSeconds,
			&costBasis, &feeValue, &p.AprBps,
		); err != nil {
			return nil, err
		}
		p.StartTime = p.StartTime.UTC()
		p.EndTime = p.EndTime.UTC()
		if p.CostBasis, err = bigFromSQL(costBasis); err != nil {
			return nil, err
		}
		if p.CollectedFeeValue, err = bigFromSQL(feeValue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
