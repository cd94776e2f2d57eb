package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func shutdown(t *testing.T, p *Pool, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	p.Shutdown(ctx)
}

func TestSubmittedRefreshesRunBeforeShutdownReturns(t *testing.T) {
	for _, workers := range []int{1, 3} {
		p := New(workers, 10)
		var ran atomic.Int32
		for _, name := range []string{"refresh:software", "refresh:startup", "refresh:system", "refresh:software", "refresh:startup"} {
			if !p.Submit(name, func(context.Context) {
				time.Sleep(time.Millisecond)
				ran.Add(1)
			}) {
				t.Fatalf("workers=%d: Submit(%s) rejected", workers, name)
			}
		}
		shutdown(t, p, 5*time.Second)

		if got := ran.Load(); got != 5 {
			t.Fatalf("workers=%d: ran %d tasks, want 5", workers, got)
		}
		if st := p.Stats(); st.Completed != 5 || st.Running != 0 || st.Queued != 0 {
			t.Fatalf("workers=%d: stats = %+v", workers, st)
		}
	}
}

func TestSubmitRejectedAfterStop(t *testing.T) {
	p := New(1, 4)
	p.Submit("refresh:software", func(context.Context) {})
	// Drain alone stops intake.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Drain(ctx)

	if p.Submit("refresh:startup", func(context.Context) {}) {
		t.Fatal("Submit after Drain should be rejected")
	}
	if got := p.Stats().Rejected; got != 1 {
		t.Fatalf("Rejected = %d, want 1", got)
	}
}

func TestFullQueueRejects(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("refresh:software", func(context.Context) {
		close(started)
		<-release
	})
	<-started

	if !p.Submit("refresh:startup", func(context.Context) {}) {
		t.Fatal("queue slot should accept one task")
	}
	if p.Submit("refresh:system", func(context.Context) {}) {
		t.Fatal("Submit should be rejected when the queue is full")
	}
	st := p.Stats()
	if st.Queued != 1 || st.Running != 1 || st.Rejected != 1 || st.Workers != 1 {
		t.Fatalf("stats = %+v", st)
	}

	close(release)
	shutdown(t, p, 5*time.Second)
}

func TestShutdownCancelsPoolContext(t *testing.T) {
	p := New(1, 10)
	poolCtx := p.Context()
	if poolCtx.Err() != nil {
		t.Fatal("pool context cancelled before shutdown")
	}

	release := make(chan struct{})
	p.Submit("refresh:software", func(context.Context) { <-release })

	var sawCancel atomic.Bool
	p.Submit("refresh:startup", func(ctx context.Context) {
		sawCancel.Store(ctx.Err() != nil)
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	shutdown(t, p, 5*time.Second)

	if poolCtx.Err() == nil {
		t.Fatal("pool context should be cancelled after Shutdown")
	}
	if !sawCancel.Load() {
		t.Fatal("queued task should observe the cancelled pool context")
	}
}

func TestShutdownHonorsDeadline(t *testing.T) {
	p := New(1, 10)
	release := make(chan struct{})
	defer close(release)
	p.Submit("refresh:system", func(context.Context) { <-release })

	start := time.Now()
	shutdown(t, p, 100*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Shutdown should give up after ~100ms, took %v", elapsed)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(1, 10)
	var ran atomic.Int32

	p.Submit("refresh:startup", func(context.Context) { panic("bad shortcut") })
	p.Submit("refresh:software", func(context.Context) { ran.Add(1) })
	shutdown(t, p, 5*time.Second)

	if ran.Load() != 1 {
		t.Fatal("task after a panic did not run")
	}
	if st := p.Stats(); st.Panicked != 1 || st.Completed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
