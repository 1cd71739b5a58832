package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/syncer"
)

// CompletedSubject carries sync completion notices.
const CompletedSubject = "midcurve.sync.completed"

// completionJSON is the wire format of one completion notice.
type completionJSON struct {
	PositionID     string    `json:"positionId"`
	ChainID        uint64    `json:"chainId,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	FromBlock      uint64    `json:"fromBlock,omitempty"`
	FinalizedBlock uint64    `json:"finalizedBlock,omitempty"`
	EventsAdded    int       `json:"eventsAdded,omitempty"`
	ChainLength    int       `json:"chainLength,omitempty"`
	SyncedAt       time.Time `json:"syncedAt,omitempty"`
}

// CompletionPublisher publishes sync outcomes. Publishing is best effort:
// the ledger is already persisted, downstream consumers can always query
// it directly, so a failed publish logs a warning and moves on.
type CompletionPublisher struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewCompletionPublisher(js jetstream.JetStream, log zerolog.Logger, metrics *observability.Metrics) *CompletionPublisher {
	return &CompletionPublisher{js: js, log: log, metrics: metrics}
}

// Publish emits one completion notice; pass the sync error (or nil) along
// with the request it answers.
func (p *CompletionPublisher) Publish(ctx context.Context, req syncer.Request, res *syncer.Result, syncErr error) {
	notice := completionJSON{
		PositionID: req.PositionID.String(),
		Status:     "completed",
	}
	if syncErr != nil {
		notice.Status = "failed"
		notice.Error = syncErr.Error()
	}
	if res != nil {
		notice.ChainID = res.ChainID
		notice.FromBlock = res.FromBlock
		notice.FinalizedBlock = res.FinalizedBlock
		notice.EventsAdded = res.EventsAdded
		notice.ChainLength = res.ChainLength
		notice.SyncedAt = res.SyncedAt
	}

	if err := p.publish(ctx, notice); err != nil {
		p.log.Warn().Err(err).Stringer("position_id", req.PositionID).Msg("completion publish failed")
		if p.metrics != nil {
			p.metrics.ResultsPublished.WithLabelValues("error").Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.ResultsPublished.WithLabelValues(notice.Status).Inc()
	}
}

func (p *CompletionPublisher) publish(ctx context.Context, notice completionJSON) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal completion notice: %w", err)
	}
	_, err = p.js.Publish(ctx, CompletedSubject, data)
	return err
}
