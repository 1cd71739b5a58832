package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/syncer"
)

func TestPool_RunsSubmittedRequests(t *testing.T) {
	f := newFixture(t)
	f.source.events = lifecycleEvents()

	pool := syncer.NewPool(f.orch, 2, 8, zerolog.Nop(), nil)
	done := make(chan *syncer.Result, 1)
	pool.OnComplete = func(_ context.Context, _ syncer.Request, res *syncer.Result, err error) {
		if err != nil {
			t.Errorf("sync via pool: %v", err)
		}
		done <- res
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	if err := pool.Submit(ctx, syncer.Request{PositionID: f.pos.ID, TriggeredBy: "test"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case res := <-done:
		if res == nil || res.EventsAdded != 3 {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not complete the request in time")
	}
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	f := newFixture(t)
	// Capacity-zero queue with no running workers: Submit must block
	// until the context expires.
	pool := syncer.NewPool(f.orch, 1, 0, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := pool.Submit(ctx, syncer.Request{PositionID: f.pos.ID}); err == nil {
		t.Error("expected context error from blocked Submit")
	}
}
