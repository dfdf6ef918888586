package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPoolPreservesPerKeyOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup

	pool := NewPool(ctx, 4, 16, func(ctx context.Context, n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		wg.Done()
	})

	const jobs = 20
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		if err := pool.Enqueue("chat-1", i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < jobs; i++ {
		if got[i] != i {
			t.Fatalf("jobs out of order at %d: %v", i, got)
		}
	}
}

func TestPoolRunsKeysConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	started := make(chan string, 2)

	pool := NewPool(ctx, 2, 4, func(ctx context.Context, key string) {
		started <- key
		<-block
	})

	if err := pool.Enqueue("a", "a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := pool.Enqueue("b", "b"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected both conversations to start, got %d", i)
		}
	}
	close(block)
}

func TestPoolReportsFullQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	started := make(chan struct{})

	pool := NewPool(ctx, 1, 2, func(ctx context.Context, n int) {
		started <- struct{}{}
		<-block
	})

	if err := pool.Enqueue("chat-1", 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started // the worker is now busy with job 1

	// Two more fit in the queue; the next must be rejected.
	if err := pool.Enqueue("chat-1", 2); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := pool.Enqueue("chat-1", 3); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := pool.Enqueue("chat-1", 4); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(block)
}
