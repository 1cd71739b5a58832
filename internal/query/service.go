// Package query is the read side of the service: position summaries, the
// ledger event list, and APR period series, straight from the stores.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/persistence"
)

type Service struct {
	positions *persistence.PositionStore
	events    *persistence.EventStore
	aprStore  *persistence.AprStore
	syncState *persistence.SyncStateStore
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewService(
	positions *persistence.PositionStore,
	events *persistence.EventStore,
	aprStore *persistence.AprStore,
	syncState *persistence.SyncStateStore,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		positions: positions,
		events:    events,
		aprStore:  aprStore,
		syncState: syncState,
		log:       log,
		metrics:   metrics,
	}
}

// PositionView is a position with its sync bookkeeping attached.
type PositionView struct {
	*persistence.Position

	LastSyncAt *time.Time
	LastSyncBy string
}

// GetPosition returns the position and when it was last synced.
func (s *Service) GetPosition(ctx context.Context, id uuid.UUID) (*PositionView, error) {
	done := s.observe("get_position")

	pos, err := s.positions.Get(ctx, id)
	if err != nil {
		done(err)
		return nil, err
	}

	view := &PositionView{Position: pos}
	st, err := s.syncState.Get(ctx, id)
	if err != nil {
		done(err)
		return nil, err
	}
	if st != nil {
		at := st.LastSyncAt
		view.LastSyncAt = &at
		view.LastSyncBy = st.LastSyncBy
	}

	done(nil)
	return view, nil
}

// ListLedger returns a position's events newest-first.
func (s *Service) ListLedger(ctx context.Context, positionID uuid.UUID) ([]*ledger.Event, error) {
	done := s.observe("list_ledger")
	events, err := s.events.ListDescending(ctx, positionID)
	done(err)
	return events, err
}

// ListAprPeriods returns a position's APR series in chronological order.
func (s *Service) ListAprPeriods(ctx context.Context, positionID uuid.UUID) ([]apr.Period, error) {
	done := s.observe("list_apr_periods")
	periods, err := s.aprStore.ListPeriods(ctx, positionID)
	done(err)
	return periods, err
}

// observe wraps one request with the query metric set.
func (s *Service) observe(endpoint string) func(error) {
	start := time.Now()
	return func(err error) {
		if s.metrics == nil {
			return
		}
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err == nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
			return
		}
		code := "internal"
		if errors.Is(err, persistence.ErrNotFound) {
			code = "not_found"
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
		s.metrics.QueryErrors.WithLabelValues(endpoint, code).Inc()
	}
}
