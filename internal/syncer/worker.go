package syncer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/observability"
)

// Pool fans sync requests out to a fixed set of workers. Requests for the
// same position serialize on a per-position lock so two workers never
// replay one chain concurrently; the store's advisory lock is the backstop,
// the pool lock avoids burning a worker on a guaranteed conflict.
type Pool struct {
	orch     *Orchestrator
	requests chan Request
	workers  int
	log      zerolog.Logger
	metrics  *observability.Metrics

	// OnComplete, when set, observes every finished run. Called from
	// worker goroutines; err is nil on success.
	OnComplete func(ctx context.Context, req Request, res *Result, err error)

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewPool(orch *Orchestrator, workers, queueSize int, log zerolog.Logger, metrics *observability.Metrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		orch:     orch,
		requests: make(chan Request, queueSize),
		workers:  workers,
		log:      log,
		metrics:  metrics,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// Submit enqueues a request, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	select {
	case p.requests <- req:
		if p.metrics != nil {
			p.metrics.SyncQueueDepth.Set(float64(len(p.requests)))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled. Queued
// requests still in flight finish their current run before exit.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) runWorker(ctx context.Context, worker int) {
	log := p.log.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.requests:
			if p.metrics != nil {
				p.metrics.SyncQueueDepth.Set(float64(len(p.requests)))
			}
			p.handle(ctx, log, req)
		}
	}
}

func (p *Pool) handle(ctx context.Context, log zerolog.Logger, req Request) {
	lock := p.positionLock(req.PositionID)
	lock.Lock()
	defer lock.Unlock()

	res, err := p.orch.Sync(ctx, req)
	if err != nil {
		log.Error().Err(err).Stringer("position_id", req.PositionID).Msg("sync failed")
	}
	if p.OnComplete != nil {
		p.OnComplete(ctx, req, res, err)
	}
}

func (p *Pool) positionLock(id uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	return lock
}
