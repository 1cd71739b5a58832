package apr

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/fixedpoint"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

// Period is one fee-accrual window between two adjacent ledger events.
// Fees collected at the closing event are annualized against the cost
// basis held over the window. The trailing window after the newest event
// stays open: EndEventID is nil and no fees are attributed yet.
type Period struct {
	PositionID   uuid.UUID
	StartEventID uuid.UUID
	EndEventID   *uuid.UUID

	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64

	CostBasis         *big.Int
	CollectedFeeValue *big.Int
	AprBps            int64
}

// BuildPeriods derives the full period series from a position's event
// chain in ascending order. Windows with no capital at risk or no
// measurable duration are dropped. now closes the trailing open window.
func BuildPeriods(events []*ledger.Event, now time.Time) ([]Period, error) {
	if len(events) == 0 {
		return nil, nil
	}

	periods := make([]Period, 0, len(events))
	for i := 0; i < len(events)-1; i++ {
		start, end := events[i], events[i+1]
		if end.Timestamp.Before(start.Timestamp) {
			return nil, fmt.Errorf("%w: events %s and %s out of chronological order",
				fixedpoint.ErrInvalidArgument, start.ID, end.ID)
		}

		p, ok, err := buildWindow(start, end.Timestamp, end)
		if err != nil {
			return nil, err
		}
		if ok {
			periods = append(periods, p)
		}
	}

	// Open trailing window from the newest event to the sync instant.
	last := events[len(events)-1]
	if now.After(last.Timestamp) {
		p, ok, err := buildWindow(last, now, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			periods = append(periods, p)
		}
	}
	return periods, nil
}

func buildWindow(start *ledger.Event, endTime time.Time, end *ledger.Event) (Period, bool, error) {
	costBasis := start.CostBasisAfter
	if costBasis == nil || costBasis.Sign() <= 0 {
		return Period{}, false, nil
	}

	duration, err := DurationSeconds(start.Timestamp, endTime)
	if err != nil {
		return Period{}, false, err
	}
	if duration <= 0 {
		return Period{}, false, nil
	}

	feeValue := new(big.Int)
	p := Period{
		PositionID:        start.PositionID,
		StartEventID:      start.ID,
		StartTime:         start.Timestamp,
		EndTime:           endTime,
		DurationSeconds:   duration,
		CostBasis:         new(big.Int).Set(costBasis),
		CollectedFeeValue: feeValue,
	}
	if end != nil {
		endID := end.ID
		p.EndEventID = &endID
		for _, r := range end.Rewards {
			if r.Value != nil {
				feeValue.Add(feeValue, r.Value)
			}
		}
	}

	bps, err := AprBps(feeValue, p.CostBasis, duration)
	if err != nil {
		return Period{}, false, err
	}
	p.AprBps = bps
	return p, true, nil
}
