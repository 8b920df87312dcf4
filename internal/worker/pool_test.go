package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(2, 8)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		err := p.Submit(Job{
			Name: "count",
			Run: func(ctx context.Context) {
				defer wg.Done()
				ran.Add(1)
			},
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	wg.Wait()
	p.Stop()

	if n := ran.Load(); n != 8 {
		t.Errorf("ran %d jobs, want 8", n)
	}
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})

	// Occupy the single worker.
	if err := p.Submit(Job{Name: "blocker", Run: func(ctx context.Context) {
		close(started)
		<-block
	}}); err != nil {
		t.Fatalf("Submit of blocker failed: %v", err)
	}
	<-started

	// Fill the single queue slot.
	if err := p.Submit(Job{Name: "queued", Run: func(ctx context.Context) {}}); err != nil {
		t.Fatalf("Submit of queued job failed: %v", err)
	}

	// Next submission must be rejected, not block.
	err := p.Submit(Job{Name: "overflow", Run: func(ctx context.Context) {}})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Submit = %v, want ErrBusy", err)
	}

	close(block)
}

func TestPoolSkipsCanceledJobs(t *testing.T) {
	p := NewPool(1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	done := make(chan struct{})
	if err := p.Submit(Job{Name: "canceled", Ctx: ctx, Run: func(ctx context.Context) {
		ran.Store(true)
	}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := p.Submit(Job{Name: "sentinel", Run: func(ctx context.Context) {
		close(done)
	}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sentinel job never ran")
	}
	p.Stop()

	if ran.Load() {
		t.Error("job with an already-canceled context was executed")
	}
}

func TestStopWaitsForInFlightJobs(t *testing.T) {
	p := NewPool(2, 4)

	var finished atomic.Int32
	for i := 0; i < 4; i++ {
		if err := p.Submit(Job{Name: "slow", Run: func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
		}}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	p.Stop()

	if n := finished.Load(); n != 4 {
		t.Errorf("Stop returned with %d of 4 jobs finished", n)
	}
}
