package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
	"github.com/0xNedAlbo/midcurve-services-sub004/internal/syncer"
)

const (
	// SyncStream holds all sync traffic.
	SyncStream = "MIDCURVE_SYNC"

	// RequestSubjectPrefix is followed by the chain id, e.g.
	// midcurve.sync.request.42161.
	RequestSubjectPrefix = "midcurve.sync.request"

	requestConsumer = "midcurve-sync-requests"
)

// SyncRequestSubscriber consumes sync requests from JetStream and submits
// them to the worker pool. Parse failures are terminated (no redelivery);
// submit failures are NAKed for redelivery.
type SyncRequestSubscriber struct {
	js       jetstream.JetStream
	pool     *syncer.Pool
	log      zerolog.Logger
	metrics  *observability.Metrics
	consumer jetstream.ConsumeContext
}

func NewSyncRequestSubscriber(js jetstream.JetStream, pool *syncer.Pool, log zerolog.Logger, metrics *observability.Metrics) *SyncRequestSubscriber {
	return &SyncRequestSubscriber{
		js:      js,
		pool:    pool,
		log:     log,
		metrics: metrics,
	}
}

// Subscribe creates the durable consumer and starts dispatching requests.
// Explicit ACK with bounded redelivery; a request is ACKed once queued,
// the sync outcome travels via the completion publisher.
func (s *SyncRequestSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, SyncStream, jetstream.ConsumerConfig{
		Durable:       requestConsumer,
		FilterSubject: RequestSubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", requestConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", requestConsumer, err)
	}
	s.consumer = cc

	s.log.Info().Str("subject", RequestSubjectPrefix+".>").Msg("subscribed to sync requests")
	return nil
}

func (s *SyncRequestSubscriber) handle(ctx context.Context, msg jetstream.Msg) {
	req, err := ParseSyncRequest(msg.Data())
	if err != nil {
		s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("invalid sync request")
		if s.metrics != nil {
			s.metrics.RequestsInvalid.WithLabelValues("parse").Inc()
		}
		// Malformed payloads never become valid on redelivery.
		msg.Term()
		return
	}

	if s.metrics != nil {
		s.metrics.RequestsReceived.WithLabelValues(chainLabelFromSubject(msg.Subject())).Inc()
	}

	// Submit blocks while the queue is full, so backpressure shows up as
	// AckWait redelivery rather than drops; only shutdown aborts the send.
	if err := s.pool.Submit(ctx, req); err != nil {
		s.log.Warn().Err(err).Stringer("position_id", req.PositionID).Msg("submit aborted, requeueing")
		msg.Nak()
		return
	}
	msg.Ack()
}

// Stop gracefully stops the consumer.
func (s *SyncRequestSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.log.Info().Msg("sync request subscriber stopped")
}

// chainLabelFromSubject extracts the trailing chain id token for metric
// labels; unparseable subjects collapse to "unknown" to bound cardinality.
func chainLabelFromSubject(subject string) string {
	prefix := RequestSubjectPrefix + "."
	if len(subject) <= len(prefix) || subject[:len(prefix)] != prefix {
		return "unknown"
	}
	label := subject[len(prefix):]
	for _, r := range label {
		if r < '0' || r > '9' {
			return "unknown"
		}
	}
	return label
}

// EnsureStream creates the sync stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      SyncStream,
		Subjects:  []string{"midcurve.sync.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", SyncStream, err)
	}
	log.Info().Str("stream", SyncStream).Msg("ensured sync stream")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
