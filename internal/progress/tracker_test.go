package progress

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/domain"
)

func TestTrackerInMemory(t *testing.T) {
	tr := NewTracker(nil)
	ctx := context.Background()

	if _, err := tr.Get(ctx, 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tr.Set(ctx, domain.Progress{JobID: 1, Processed: 50, Total: 200, Status: domain.JobRunning})

	p, err := tr.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Processed != 50 || p.Total != 200 {
		t.Errorf("got processed=%d total=%d", p.Processed, p.Total)
	}
	if p.Percent != 25 {
		t.Errorf("percent = %v, want 25", p.Percent)
	}

	if tr.CancelRequested(ctx, 1) {
		t.Error("cancel should not be requested yet")
	}
	tr.RequestCancel(ctx, 1)
	if !tr.CancelRequested(ctx, 1) {
		t.Error("cancel should be requested")
	}

	tr.Clear(ctx, 1)
	if _, err := tr.Get(ctx, 1); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after Clear, got %v", err)
	}
	if tr.CancelRequested(ctx, 1) {
		t.Error("cancel flag should be cleared")
	}
}

func TestTrackerRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tr := NewTracker(client)
	ctx := context.Background()

	tr.Set(ctx, domain.Progress{JobID: 7, Processed: 10, Total: 100, Status: domain.JobRunning})

	p, err := tr.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.JobID != 7 || p.Processed != 10 {
		t.Errorf("unexpected progress %+v", p)
	}

	tr.RequestCancel(ctx, 7)
	if !tr.CancelRequested(ctx, 7) {
		t.Error("cancel should be visible through Redis")
	}

	// A second tracker sharing the Redis backend sees the same state.
	tr2 := NewTracker(client)
	p2, err := tr2.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get from second tracker: %v", err)
	}
	if p2.Processed != 10 {
		t.Errorf("second tracker processed = %d, want 10", p2.Processed)
	}
	if !tr2.CancelRequested(ctx, 7) {
		t.Error("second tracker should see cancel flag")
	}
}
