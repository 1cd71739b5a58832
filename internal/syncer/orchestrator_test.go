package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/persistence"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/protocol/uniswapv3"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/syncer"
)

// ============================================================
// In-memory fakes
// ============================================================

type fakeEvents struct {
	mu        sync.Mutex
	validator *ledger.ChainValidator
	chains    map[uuid.UUID][]*ledger.Event
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		validator: ledger.NewChainValidator(),
		chains:    make(map[uuid.UUID][]*ledger.Event),
	}
}

func (f *fakeEvents) Append(_ context.Context, evt *ledger.Event) (*ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chain := f.chains[evt.PositionID]
	var tip *ledger.Event
	if len(chain) > 0 {
		tip = chain[len(chain)-1]
	}

	for _, existing := range chain {
		if existing.InputHash == evt.InputHash {
			return nil, fmt.Errorf("duplicate input hash: %w", ledger.ErrSequence)
		}
	}

	evt.ID = uuid.New()
	evt.PreviousID = nil
	if tip != nil {
		evt.PreviousID = &tip.ID
	}
	if err := f.validator.ValidateAppend(tip, evt); err != nil {
		return nil, err
	}

	f.chains[evt.PositionID] = append(chain, evt)
	return evt, nil
}

func (f *fakeEvents) LatestEvent(_ context.Context, positionID uuid.UUID) (*ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chain := f.chains[positionID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (f *fakeEvents) ListAscending(_ context.Context, positionID uuid.UUID) ([]*ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ledger.Event(nil), f.chains[positionID]...), nil
}

func (f *fakeEvents) DeleteTail(_ context.Context, positionID uuid.UUID, fromBlock uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chain := f.chains[positionID]
	kept := chain[:0:0]
	var deleted int64
	for _, evt := range chain {
		if evt.Coordinate.BlockNumber >= fromBlock {
			deleted++
			continue
		}
		kept = append(kept, evt)
	}
	f.chains[positionID] = kept
	return deleted, nil
}

func (f *fakeEvents) DeleteAll(_ context.Context, positionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.chains[positionID]))
	delete(f.chains, positionID)
	return n, nil
}

type fakePositions struct {
	pos      *persistence.Position
	snapshot *persistence.PositionSnapshot
}

func (f *fakePositions) Get(_ context.Context, id uuid.UUID) (*persistence.Position, error) {
	if f.pos == nil || f.pos.ID != id {
		return nil, persistence.ErrNotFound
	}
	return f.pos, nil
}

func (f *fakePositions) UpdateSnapshot(_ context.Context, _ uuid.UUID, snap persistence.PositionSnapshot) error {
	f.snapshot = &snap
	return nil
}

type fakeSyncState struct {
	state   *persistence.SyncState
	touched int
	cleared int
}

func (f *fakeSyncState) Get(_ context.Context, _ uuid.UUID) (*persistence.SyncState, error) {
	return f.state, nil
}

func (f *fakeSyncState) Touch(_ context.Context, _ uuid.UUID, _ time.Time, _ string) error {
	f.touched++
	return nil
}

func (f *fakeSyncState) ClearMissingEvents(_ context.Context, _ uuid.UUID) error {
	f.cleared++
	if f.state != nil {
		f.state.MissingEvents = nil
	}
	return nil
}

type fakeApr struct {
	periods []apr.Period
}

func (f *fakeApr) ReplacePeriods(_ context.Context, _ uuid.UUID, periods []apr.Period) error {
	f.periods = periods
	return nil
}

type fakeSource struct {
	events []ledger.RawEvent
	err    error
}

func (f *fakeSource) FetchEvents(_ context.Context, _ ledger.PositionRef, fromBlock, toBlock uint64) ([]ledger.RawEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ledger.RawEvent
	for _, ev := range f.events {
		if ev.Coordinate.BlockNumber >= fromBlock && ev.Coordinate.BlockNumber <= toBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakePrices struct{}

func (fakePrices) PriceAt(_ context.Context, _ uint64, _ string, block uint64) (ledger.PoolPrice, error) {
	return ledger.PoolPrice{
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Timestamp:    time.Unix(1_700_000_000+int64(block), 0).UTC(),
	}, nil
}

type fakeBlocks struct {
	finalized uint64
}

func (f fakeBlocks) LastFinalizedBlock(_ context.Context, _ uint64) (uint64, error) {
	return f.finalized, nil
}

// ============================================================
// Fixtures
// ============================================================

type fixture struct {
	orch      *syncer.Orchestrator
	events    *fakeEvents
	positions *fakePositions
	syncState *fakeSyncState
	aprStore  *fakeApr
	source    *fakeSource
	pos       *persistence.Position
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pos := &persistence.Position{
		ID:                 uuid.New(),
		ChainID:            42161,
		Protocol:           uniswapv3.ProtocolName,
		ProtocolPositionID: "777",
		Pool:               "0xPool",
		Token0:             "0xWETH",
		Token1:             "0xUSDC",
		Decimals0:          18,
		Decimals1:          6,
		QuoteIsToken0:      false,
		RangeLower:         -887220,
		RangeUpper:         887220,
		IsActive:           true,
	}

	f := &fixture{
		events:    newFakeEvents(),
		positions: &fakePositions{pos: pos},
		syncState: &fakeSyncState{},
		aprStore:  &fakeApr{},
		source:    &fakeSource{},
		pos:       pos,
	}
	f.orch = syncer.NewOrchestrator(syncer.Deps{
		Adapter:   uniswapv3.NewAdapter(),
		Events:    f.events,
		Positions: f.positions,
		SyncState: f.syncState,
		Apr:       f.aprStore,
		Source:    f.source,
		Prices:    fakePrices{},
		Blocks:    fakeBlocks{finalized: 10_000},
	}, zerolog.Nop(), nil)
	return f
}

func rawAt(block uint64, typ ledger.EventType, deltaLiq, amount1 int64) ledger.RawEvent {
	ev := ledger.RawEvent{
		Type:            typ,
		Coordinate:      ledger.Coordinate{BlockNumber: block, LogIndex: 1},
		TransactionHash: fmt.Sprintf("0x%d", block),
		Timestamp:       time.Unix(1_700_000_000+int64(block), 0).UTC(),
		Amount0:         big.NewInt(0),
		Amount1:         big.NewInt(amount1),
	}
	if deltaLiq != 0 {
		ev.DeltaLiquidity = big.NewInt(deltaLiq)
	}
	return ev
}

func lifecycleEvents() []ledger.RawEvent {
	return []ledger.RawEvent{
		rawAt(1000, ledger.EventTypeIncreasePosition, 1_000_000, 2_000),
		rawAt(2000, ledger.EventTypeDecreasePosition, 500_000, 1_100),
		rawAt(3000, ledger.EventTypeCollect, 0, 1_120),
	}
}

// ============================================================
// Tests
// ============================================================

func TestSync_BuildsChainFromScratch(t *testing.T) {
	f := newFixture(t)
	f.source.events = lifecycleEvents()

	res, err := f.orch.Sync(context.Background(), syncer.Request{PositionID: f.pos.ID})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if res.EventsAdded != 3 {
		t.Errorf("events added: got %d, want 3", res.EventsAdded)
	}
	if res.ChainLength != 3 {
		t.Errorf("chain length: got %d, want 3", res.ChainLength)
	}
	if res.FinalizedBlock != 10_000 {
		t.Errorf("finalized block: got %d", res.FinalizedBlock)
	}

	chain, _ := f.events.ListAscending(context.Background(), f.pos.ID)
	last := chain[len(chain)-1]
	if last.CostBasisAfter.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("final cost basis: got %s, want 1000", last.CostBasisAfter)
	}
	if last.PnlAfter.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("final pnl: got %s, want 100", last.PnlAfter)
	}

	if f.positions.snapshot == nil {
		t.Fatal("snapshot not written")
	}
	snap := f.positions.snapshot
	if snap.CurrentCostBasis.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("snapshot cost basis: got %s, want 1000", snap.CurrentCostBasis)
	}
	if snap.RealizedPnl.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("snapshot realized pnl: got %s, want 100", snap.RealizedPnl)
	}
	if snap.CollectedFees.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("snapshot collected fees: got %s, want 20", snap.CollectedFees)
	}
	if !snap.IsActive {
		t.Error("position with remaining liquidity must stay active")
	}

	if len(f.aprStore.periods) < 2 {
		t.Errorf("apr periods: got %d, want at least 2", len(f.aprStore.periods))
	}
	if f.syncState.touched != 1 {
		t.Errorf("sync state touched %d times, want 1", f.syncState.touched)
	}
}

func TestSync_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.source.events = lifecycleEvents()
	ctx := context.Background()

	if _, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first, _ := f.events.ListAscending(ctx, f.pos.ID)

	res, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	// The tip block is re-verified: its event is deleted and re-derived.
	if res.FromBlock != 3000 {
		t.Errorf("rewind start: got %d, want 3000 (tip block)", res.FromBlock)
	}
	if res.TailDeleted != 1 {
		t.Errorf("tail deleted: got %d, want 1", res.TailDeleted)
	}
	if res.EventsAdded != 1 {
		t.Errorf("second sync added %d events, want 1", res.EventsAdded)
	}

	second, _ := f.events.ListAscending(ctx, f.pos.ID)
	if len(first) != len(second) {
		t.Fatalf("chain length changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].InputHash != second[i].InputHash {
			t.Errorf("event %d input hash changed across syncs", i)
		}
		if first[i].CostBasisAfter.Cmp(second[i].CostBasisAfter) != 0 {
			t.Errorf("event %d cost basis changed across syncs", i)
		}
		if first[i].PnlAfter.Cmp(second[i].PnlAfter) != 0 {
			t.Errorf("event %d pnl changed across syncs", i)
		}
	}
}

func TestSync_ForceFullResyncRebuildsIdentically(t *testing.T) {
	f := newFixture(t)
	f.source.events = lifecycleEvents()
	ctx := context.Background()

	if _, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID}); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	before, _ := f.events.ListAscending(ctx, f.pos.ID)

	res, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID, ForceFullResync: true})
	if err != nil {
		t.Fatalf("full resync: %v", err)
	}
	if res.TailDeleted != 3 {
		t.Errorf("tail deleted: got %d, want 3", res.TailDeleted)
	}
	if res.EventsAdded != 3 {
		t.Errorf("events re-added: got %d, want 3", res.EventsAdded)
	}

	after, _ := f.events.ListAscending(ctx, f.pos.ID)
	if len(before) != len(after) {
		t.Fatalf("chain length differs after full resync")
	}
	for i := range before {
		if before[i].InputHash != after[i].InputHash {
			t.Errorf("event %d: input hash differs after full resync", i)
		}
		if before[i].PnlAfter.Cmp(after[i].PnlAfter) != 0 {
			t.Errorf("event %d: pnl differs after full resync", i)
		}
	}
}

func TestSync_BufferedEventForcesRewind(t *testing.T) {
	f := newFixture(t)
	events := lifecycleEvents()
	// The primary source misses the decrease at block 2000.
	f.source.events = []ledger.RawEvent{events[0], events[2]}
	ctx := context.Background()

	if _, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID}); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// It later surfaces via an external report.
	f.syncState.state = &persistence.SyncState{
		PositionID:    f.pos.ID,
		MissingEvents: []ledger.RawEvent{events[1]},
	}

	res, err := f.orch.Sync(ctx, syncer.Request{PositionID: f.pos.ID})
	if err != nil {
		t.Fatalf("resync with buffer: %v", err)
	}
	if res.FromBlock != 2000 {
		t.Errorf("rewind start: got %d, want 2000", res.FromBlock)
	}
	if res.TailDeleted != 1 {
		t.Errorf("tail deleted: got %d, want 1 (the collect)", res.TailDeleted)
	}

	chain, _ := f.events.ListAscending(ctx, f.pos.ID)
	if len(chain) != 3 {
		t.Fatalf("chain length: got %d, want 3", len(chain))
	}
	if chain[1].EventType != ledger.EventTypeDecreasePosition {
		t.Errorf("buffered decrease not merged at position 1")
	}
	if chain[2].PnlAfter.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("final pnl after merge: got %s, want 100", chain[2].PnlAfter)
	}
	if f.syncState.cleared != 1 {
		t.Errorf("buffer cleared %d times, want 1", f.syncState.cleared)
	}
}

func TestSync_PrimarySourceWinsOnCollision(t *testing.T) {
	f := newFixture(t)
	events := lifecycleEvents()
	f.source.events = events

	// Buffered report at the same coordinate with a different amount.
	conflicting := events[0]
	conflicting.Amount1 = big.NewInt(9_999)
	f.syncState.state = &persistence.SyncState{
		PositionID:    f.pos.ID,
		MissingEvents: []ledger.RawEvent{conflicting},
	}

	if _, err := f.orch.Sync(context.Background(), syncer.Request{PositionID: f.pos.ID}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	chain, _ := f.events.ListAscending(context.Background(), f.pos.ID)
	if chain[0].Token1Amount.Cmp(big.NewInt(2_000)) != 0 {
		t.Errorf("primary source must win: got amount %s, want 2000", chain[0].Token1Amount)
	}
}

func TestSync_SourceErrorWrapsErrSync(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("explorer unavailable")

	_, err := f.orch.Sync(context.Background(), syncer.Request{PositionID: f.pos.ID})
	if !errors.Is(err, syncer.ErrSync) {
		t.Errorf("expected ErrSync, got %v", err)
	}

	chain, _ := f.events.ListAscending(context.Background(), f.pos.ID)
	if len(chain) != 0 {
		t.Errorf("failed sync must not leave events behind, got %d", len(chain))
	}
}

func TestSync_UnknownPositionFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Sync(context.Background(), syncer.Request{PositionID: uuid.New()})
	if !errors.Is(err, syncer.ErrSync) {
		t.Errorf("expected ErrSync for unknown position, got %v", err)
	}
}

func TestSync_IgnoresUnfinalizedEvents(t *testing.T) {
	f := newFixture(t)
	events := lifecycleEvents()
	// One event past the finalized block must wait for a later sync.
	events = append(events, rawAt(20_000, ledger.EventTypeCollect, 0, 5))
	f.source.events = events

	res, err := f.orch.Sync(context.Background(), syncer.Request{PositionID: f.pos.ID})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.EventsAdded != 3 {
		t.Errorf("events added: got %d, want 3 (unfinalized excluded)", res.EventsAdded)
	}
}
