package apr_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
)

func periodEvent(ts time.Time, costBasisAfter int64, feeValues ...int64) *ledger.Event {
	evt := &ledger.Event{
		ID:             uuid.New(),
		PositionID:     uuid.MustParse("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"),
		Timestamp:      ts,
		CostBasisAfter: big.NewInt(costBasisAfter),
	}
	for _, v := range feeValues {
		evt.Rewards = append(evt.Rewards, ledger.Reward{
			Token:  "0xUSDC",
			Amount: big.NewInt(v),
			Value:  big.NewInt(v),
		})
	}
	return evt
}

func TestBuildPeriods_AttributesFeesToClosingEvent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []*ledger.Event{
		periodEvent(base, 10_000),
		// Collect after half a year: 100 fees on 10000 basis -> 200 bps.
		periodEvent(base.Add(time.Duration(apr.SecondsPerYear/2)*time.Second), 10_000, 100),
	}

	periods, err := apr.BuildPeriods(events, events[1].Timestamp)
	if err != nil {
		t.Fatalf("BuildPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1 (no trailing window at sync instant)", len(periods))
	}

	p := periods[0]
	if p.StartEventID != events[0].ID {
		t.Error("period must start at the opening event")
	}
	if p.EndEventID == nil || *p.EndEventID != events[1].ID {
		t.Error("period must end at the closing event")
	}
	if p.CollectedFeeValue.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("fee value: got %s, want 100", p.CollectedFeeValue)
	}
	if p.AprBps != 200 {
		t.Errorf("apr: got %d bps, want 200", p.AprBps)
	}
}

func TestBuildPeriods_OpenTrailingWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []*ledger.Event{periodEvent(base, 5_000)}
	now := base.Add(30 * 24 * time.Hour)

	periods, err := apr.BuildPeriods(events, now)
	if err != nil {
		t.Fatalf("BuildPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1", len(periods))
	}

	p := periods[0]
	if p.EndEventID != nil {
		t.Error("trailing window must stay open")
	}
	if !p.EndTime.Equal(now) {
		t.Errorf("trailing window end: got %s, want %s", p.EndTime, now)
	}
	if p.CollectedFeeValue.Sign() != 0 || p.AprBps != 0 {
		t.Error("open window carries no fees and zero apr")
	}
}

func TestBuildPeriods_SkipsZeroCostBasisWindows(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []*ledger.Event{
		periodEvent(base, 2_000),
		// Full withdrawal: no capital at risk afterwards.
		periodEvent(base.Add(24*time.Hour), 0),
	}

	periods, err := apr.BuildPeriods(events, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("BuildPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1 (closed window only)", len(periods))
	}
	if periods[0].EndEventID == nil {
		t.Error("surviving period must be the closed one")
	}
}

func TestBuildPeriods_EmptyChain(t *testing.T) {
	periods, err := apr.BuildPeriods(nil, time.Now())
	if err != nil {
		t.Fatalf("BuildPeriods(nil): %v", err)
	}
	if len(periods) != 0 {
		t.Errorf("empty chain must yield no periods, got %d", len(periods))
	}
}

func TestBuildPeriods_RejectsUnorderedEvents(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []*ledger.Event{
		periodEvent(base, 2_000),
		periodEvent(base.Add(-time.Hour), 2_000),
	}
	if _, err := apr.BuildPeriods(events, base.Add(time.Hour)); err == nil {
		t.Error("expected error for non-chronological events")
	}
}
