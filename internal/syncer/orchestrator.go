// Package syncer rebuilds position ledgers from on-chain history. A sync
// run resolves the finalized block, rewinds the stored chain far enough to
// cover newly surfaced events, replays raw events through the protocol
// adapter, and refreshes the derived APR series and position snapshot.
package syncer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/apr"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/fixedpoint"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ledger"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/persistence"
)

// Request asks for one position to be synced.
type Request struct {
	PositionID      uuid.UUID
	ForceFullResync bool

	// TriggeredBy names the actor recorded in sync state, e.g. "nats" or
	// "scheduler".
	TriggeredBy string
}

// Result summarizes a completed sync run.
type Result struct {
	PositionID     uuid.UUID
	ChainID        uint64
	FromBlock      uint64
	FinalizedBlock uint64
	EventsAdded    int
	TailDeleted    int64
	ChainLength    int
	SyncedAt       time.Time
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Adapter   ledger.Adapter
	Events    EventStore
	Positions PositionStore
	SyncState SyncStateStore
	Apr       AprStore
	Source    EventSource
	Prices    PriceProvider
	Blocks    FinalizedBlockResolver
}

type Orchestrator struct {
	deps    Deps
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewOrchestrator(deps Deps, log zerolog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Sync runs one full sync for a position. Failures before the replay
// leave the stored chain untouched; a failure mid-replay leaves a valid
// shorter chain that the next sync resumes from.
func (o *Orchestrator) Sync(ctx context.Context, req Request) (*Result, error) {
	start := o.now()

	pos, err := o.deps.Positions.Get(ctx, req.PositionID)
	if err != nil {
		return nil, o.fail("", "load_position", err)
	}
	ref := pos.Ref()
	chainLabel := strconv.FormatUint(pos.ChainID, 10)

	if o.metrics != nil {
		trigger := req.TriggeredBy
		if trigger == "" {
			trigger = "manual"
		}
		o.metrics.SyncsStarted.WithLabelValues(chainLabel, trigger).Inc()
	}

	finalized, err := o.deps.Blocks.LastFinalizedBlock(ctx, pos.ChainID)
	if err != nil {
		return nil, o.fail(chainLabel, "finalized_block", err)
	}

	buffered, err := o.bufferedEvents(ctx, req.PositionID, finalized)
	if err != nil {
		return nil, o.fail(chainLabel, "load_buffer", err)
	}

	fromBlock, deleted, err := o.rewind(ctx, req, ref, buffered, finalized)
	if err != nil {
		return nil, o.fail(chainLabel, "rewind", err)
	}

	var fetched []ledger.RawEvent
	if fromBlock <= finalized {
		fetched, err = o.deps.Source.FetchEvents(ctx, ref, fromBlock, finalized)
		if err != nil {
			return nil, o.fail(chainLabel, "fetch_events", err)
		}
	}

	replayable := mergeEvents(fetched, buffered, fromBlock, finalized)

	tip, err := o.deps.Events.LatestEvent(ctx, req.PositionID)
	if err != nil {
		return nil, o.fail(chainLabel, "load_tip", err)
	}
	state, err := o.deps.Adapter.SeedState(tip)
	if err != nil {
		return nil, o.fail(chainLabel, "seed_state", err)
	}

	added := 0
	for _, raw := range replayable {
		price, err := o.deps.Prices.PriceAt(ctx, pos.ChainID, pos.Pool, raw.Coordinate.BlockNumber)
		if err != nil {
			return nil, o.fail(chainLabel, "price", err)
		}
		evt, next, err := o.deps.Adapter.ProcessEvent(ref, state, raw, price)
		if err != nil {
			return nil, o.fail(chainLabel, "process_event", err)
		}
		if _, err := o.deps.Events.Append(ctx, evt); err != nil {
			return nil, o.fail(chainLabel, "append", err)
		}
		state = next
		added++
		if o.metrics != nil {
			o.metrics.EventsAppended.WithLabelValues(evt.EventType.String()).Inc()
			o.metrics.SyncEventsAdded.WithLabelValues(chainLabel).Inc()
		}
	}

	if len(buffered) > 0 {
		if err := o.deps.SyncState.ClearMissingEvents(ctx, req.PositionID); err != nil {
			return nil, o.fail(chainLabel, "clear_buffer", err)
		}
	}

	chain, err := o.deps.Events.ListAscending(ctx, req.PositionID)
	if err != nil {
		return nil, o.fail(chainLabel, "list_chain", err)
	}

	syncedAt := o.now()
	periods, err := apr.BuildPeriods(chain, syncedAt)
	if err != nil {
		return nil, o.fail(chainLabel, "build_apr", err)
	}
	if err := o.deps.Apr.ReplacePeriods(ctx, req.PositionID, periods); err != nil {
		return nil, o.fail(chainLabel, "store_apr", err)
	}

	if err := o.writeSnapshot(ctx, pos, ref, chain, state, finalized); err != nil {
		return nil, o.fail(chainLabel, "snapshot", err)
	}

	// Sync-state bookkeeping is advisory; a failed touch never fails the run.
	by := req.TriggeredBy
	if by == "" {
		by = "manual"
	}
	if err := o.deps.SyncState.Touch(ctx, req.PositionID, syncedAt, by); err != nil {
		o.log.Warn().Err(err).Stringer("position_id", req.PositionID).Msg("sync state touch failed")
	}

	if o.metrics != nil {
		o.metrics.SyncsCompleted.WithLabelValues(chainLabel).Inc()
		o.metrics.SyncDuration.WithLabelValues(chainLabel).Observe(o.now().Sub(start).Seconds())
		o.metrics.SyncTailDeleted.WithLabelValues(chainLabel).Add(float64(deleted))
		o.metrics.ChainLength.WithLabelValues(chainLabel).Set(float64(len(chain)))
	}

	o.log.Info().
		Stringer("position_id", req.PositionID).
		Uint64("from_block", fromBlock).
		Uint64("finalized_block", finalized).
		Int("events_added", added).
		Int64("tail_deleted", deleted).
		Msg("sync complete")

	return &Result{
		PositionID:     req.PositionID,
		ChainID:        pos.ChainID,
		FromBlock:      fromBlock,
		FinalizedBlock: finalized,
		EventsAdded:    added,
		TailDeleted:    deleted,
		ChainLength:    len(chain),
		SyncedAt:       syncedAt,
	}, nil
}

func (o *Orchestrator) fail(chainLabel, stage string, err error) error {
	if o.metrics != nil && chainLabel != "" {
		o.metrics.SyncsFailed.WithLabelValues(chainLabel, stage).Inc()
	}
	return fmt.Errorf("%w: %s: %v", ErrSync, stage, err)
}

// bufferedEvents loads externally reported events, dropping anything past
// the finalized block: unfinalized reports wait for a later sync.
func (o *Orchestrator) bufferedEvents(ctx context.Context, positionID uuid.UUID, finalized uint64) ([]ledger.RawEvent, error) {
	st, err := o.deps.SyncState.Get(ctx, positionID)
	if err != nil || st == nil {
		return nil, err
	}
	out := st.MissingEvents[:0:0]
	for _, ev := range st.MissingEvents {
		if ev.Coordinate.BlockNumber <= finalized {
			out = append(out, ev)
		}
	}
	return out, nil
}

// rewind picks the replay start block and deletes the chain suffix it
// covers. A full resync starts at the protocol deployment block. An
// incremental one restarts at the tip's block so the boundary block is
// re-verified against the source, rewinding further when a buffered
// event predates it. With no history the start is the deployment block
// capped at the finalized block.
func (o *Orchestrator) rewind(ctx context.Context, req Request, ref ledger.PositionRef, buffered []ledger.RawEvent, finalized uint64) (uint64, int64, error) {
	deployment := o.deps.Adapter.DeploymentBlock(ref.ChainID)

	if req.ForceFullResync {
		deleted, err := o.deps.Events.DeleteAll(ctx, req.PositionID)
		return deployment, deleted, err
	}

	tip, err := o.deps.Events.LatestEvent(ctx, req.PositionID)
	if err != nil {
		return 0, 0, err
	}

	fromBlock := min(deployment, finalized)
	if tip != nil {
		fromBlock = tip.Coordinate.BlockNumber
	}
	for _, ev := range buffered {
		if ev.Coordinate.BlockNumber < fromBlock {
			fromBlock = ev.Coordinate.BlockNumber
		}
	}

	var deleted int64
	if tip != nil {
		deleted, err = o.deps.Events.DeleteTail(ctx, req.PositionID, fromBlock)
		if err != nil {
			return 0, 0, err
		}
	}
	return fromBlock, deleted, nil
}

// mergeEvents combines primary-source events with buffered reports. On a
// coordinate collision the primary source wins; within one source the
// first occurrence wins. The result is ascending and bounded by
// [fromBlock, finalized].
func mergeEvents(primary, buffered []ledger.RawEvent, fromBlock, finalized uint64) []ledger.RawEvent {
	seen := make(map[string]struct{}, len(primary)+len(buffered))
	out := make([]ledger.RawEvent, 0, len(primary)+len(buffered))

	for _, src := range [][]ledger.RawEvent{primary, buffered} {
		for _, ev := range src {
			block := ev.Coordinate.BlockNumber
			if block < fromBlock || block > finalized {
				continue
			}
			key := ev.Coordinate.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ev)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Coordinate.Before(out[j].Coordinate)
	})
	return out
}

// writeSnapshot recomputes the denormalized position summary from the
// final running state and the pool price at the finalized block.
func (o *Orchestrator) writeSnapshot(ctx context.Context, pos *persistence.Position, ref ledger.PositionRef, chain []*ledger.Event, state ledger.RunningState, finalized uint64) error {
	collected := new(big.Int)
	for _, evt := range chain {
		for _, r := range evt.Rewards {
			if r.Value != nil {
				collected.Add(collected, r.Value)
			}
		}
	}

	costBasis := new(big.Int)
	realized := new(big.Int)
	var last *ledger.Event
	if len(chain) > 0 {
		last = chain[len(chain)-1]
		costBasis.Set(last.CostBasisAfter)
		realized.Set(last.PnlAfter)
	}

	price, err := o.deps.Prices.PriceAt(ctx, pos.ChainID, pos.Pool, finalized)
	if err != nil {
		return err
	}

	currentValue, err := o.positionValue(ref, state, price)
	if err != nil {
		return err
	}

	unrealized := new(big.Int).Sub(currentValue, costBasis)

	fee0, fee1, err := o.deps.Adapter.UnclaimedFees(last)
	if err != nil {
		return err
	}
	unclaimed, err := fixedpoint.TokenPairValueInQuote(
		fee0, fee1, price.SqrtPriceX96,
		ref.Market.QuoteIsToken0, ref.Market.Decimals0, ref.Market.Decimals1)
	if err != nil {
		return err
	}

	active := len(chain) == 0 ||
		state.Liquidity.Sign() > 0 ||
		state.UncollectedPrincipal0.Sign() > 0 ||
		state.UncollectedPrincipal1.Sign() > 0

	return o.deps.Positions.UpdateSnapshot(ctx, pos.ID, persistence.PositionSnapshot{
		IsActive:         active,
		CurrentValue:     currentValue,
		CurrentCostBasis: costBasis,
		RealizedPnl:      realized,
		UnrealizedPnl:    unrealized,
		CollectedFees:    collected,
		UnclaimedFees:    unclaimed,
	})
}

// positionValue prices the capital still inside the protocol: the token
// amounts backing current liquidity at the current price, plus the
// withdrawn-but-uncollected principal pool.
func (o *Orchestrator) positionValue(ref ledger.PositionRef, state ledger.RunningState, price ledger.PoolPrice) (*big.Int, error) {
	sqrtLower, err := fixedpoint.SqrtPriceAtTick(ref.RangeLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := fixedpoint.SqrtPriceAtTick(ref.RangeUpper)
	if err != nil {
		return nil, err
	}

	amount0, amount1, err := fixedpoint.AmountsForLiquidity(price.SqrtPriceX96, sqrtLower, sqrtUpper, state.Liquidity)
	if err != nil {
		return nil, err
	}
	amount0.Add(amount0, state.UncollectedPrincipal0)
	amount1.Add(amount1, state.UncollectedPrincipal1)

	return fixedpoint.TokenPairValueInQuote(
		amount0, amount1, price.SqrtPriceX96,
		ref.Market.QuoteIsToken0, ref.Market.Decimals0, ref.Market.Decimals1)
}
