package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// startQueue runs q in the background and stops it when the test ends.
func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		q.Close()
		cancel()
		<-done
	})
}

func TestFIFOOrder(t *testing.T) {
	q := New(Options{})
	startQueue(t, q)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		if err := q.Enqueue("append", func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("unexpected error on Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("unexpected error on Drain: %v", err)
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestOneOpInFlight(t *testing.T) {
	q := New(Options{})
	startQueue(t, q)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	for i := 0; i < 20; i++ {
		q.Enqueue("op", func() error {
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("unexpected error on Drain: %v", err)
	}
	if maxSeen != 1 {
		t.Errorf("expected at most 1 op in flight, saw %d", maxSeen)
	}
}

func TestFailureDoesNotStopWorker(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	q := New(Options{
		OnDone: func(name string, _ time.Duration, err error) {
			if err != nil {
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
		},
	})
	startQueue(t, q)

	boom := errors.New("boom")
	q.Enqueue("first", func() error { return boom })
	q.Enqueue("second", func() error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := q.Do(ctx, "third", func() error { return nil })
	if err != nil {
		t.Fatalf("expected third op to succeed after failures, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"first", "second"}, failed); diff != "" {
		t.Errorf("failed ops mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitReturnsOpError(t *testing.T) {
	q := New(Options{})
	startQueue(t, q)

	boom := errors.New("disk full")
	select {
	case err := <-q.Submit("put", func() error { return boom }):
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Submit result")
	}
}

func TestDoHonoursContext(t *testing.T) {
	q := New(Options{})
	// No worker: the op can never run.

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Do(ctx, "stuck", func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("expected the op to stay queued, got len %d", q.Len())
	}
}

func TestCloseDrainsBacklog(t *testing.T) {
	q := New(Options{})

	ran := 0
	for i := 0; i < 3; i++ {
		q.Enqueue("op", func() error { ran++; return nil })
	}
	q.Close()

	if err := q.Enqueue("late", func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		q.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if ran != 3 {
		t.Errorf("expected backlog of 3 to run, ran %d", ran)
	}
}

func TestSlowOpStillCompletes(t *testing.T) {
	q := New(Options{SlowOpThreshold: time.Millisecond})
	startQueue(t, q)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := q.Do(ctx, "slow", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
