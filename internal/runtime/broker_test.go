package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBrokerCachesSequentialCalls(t *testing.T) {
	b := newInvocationBroker()
	var calls atomic.Int32
	fn := func(context.Context) (ToolResult, error) {
		calls.Add(1)
		return ToolResult{Content: "payload"}, nil
	}

	res, err, hit := b.Do(context.Background(), "k", nil, fn)
	if err != nil || hit || res.Content != "payload" {
		t.Fatalf("first call: res=%q err=%v hit=%v", res.Content, err, hit)
	}
	res, err, hit = b.Do(context.Background(), "k", nil, fn)
	if err != nil || !hit || res.Content != "payload" {
		t.Fatalf("second call: res=%q err=%v hit=%v", res.Content, err, hit)
	}
	if calls.Load() != 1 {
		t.Fatalf("fn ran %d times, want 1", calls.Load())
	}
}

func TestBrokerDoesNotCacheFailures(t *testing.T) {
	b := newInvocationBroker()
	var calls atomic.Int32
	fn := func(context.Context) (ToolResult, error) {
		calls.Add(1)
		return ToolResult{}, errors.New("boom")
	}

	if _, err, _ := b.Do(context.Background(), "k", nil, fn); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err, _ := b.Do(context.Background(), "k", nil, fn); err == nil {
		t.Fatalf("expected failure on retry")
	}
	if calls.Load() != 2 {
		t.Fatalf("failed results must not be cached, fn ran %d times", calls.Load())
	}
}

func TestBrokerCoalescesConcurrentCalls(t *testing.T) {
	b := newInvocationBroker()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (ToolResult, error) {
		calls.Add(1)
		close(started)
		<-release
		return ToolResult{Content: "shared"}, nil
	}

	type outcome struct {
		res ToolResult
		err error
		hit bool
	}
	first := make(chan outcome, 1)
	go func() {
		r, e, h := b.Do(context.Background(), "k", nil, fn)
		first <- outcome{r, e, h}
	}()
	<-started

	second := make(chan outcome, 1)
	go func() {
		// Joins the in-flight call; fn must not run a second time.
		r, e, h := b.Do(context.Background(), "k", nil, fn)
		second <- outcome{r, e, h}
	}()

	close(release)
	o1 := <-first
	o2 := <-second
	if o1.err != nil || o2.err != nil {
		t.Fatalf("errors: %v %v", o1.err, o2.err)
	}
	if o1.hit {
		t.Fatalf("originating call must not report a cache hit")
	}
	if !o2.hit || o2.res.Content != "shared" {
		t.Fatalf("joined call: res=%q hit=%v, want shared/true", o2.res.Content, o2.hit)
	}
	if calls.Load() != 1 {
		t.Fatalf("fn ran %d times, want 1", calls.Load())
	}
}

func TestBrokerInvalidateDropsIntersectingEntries(t *testing.T) {
	b := newInvocationBroker()
	counted := func(calls *atomic.Int32, content string) func(context.Context) (ToolResult, error) {
		return func(context.Context) (ToolResult, error) {
			calls.Add(1)
			return ToolResult{Content: content}, nil
		}
	}
	var aCalls, bCalls atomic.Int32
	if _, err, _ := b.Do(context.Background(), "read:a", []string{"file:a"}, counted(&aCalls, "a1")); err != nil {
		t.Fatal(err)
	}
	if _, err, _ := b.Do(context.Background(), "read:b", []string{"file:b"}, counted(&bCalls, "b1")); err != nil {
		t.Fatal(err)
	}

	b.Invalidate([]string{"file:a"})

	res, err, hit := b.Do(context.Background(), "read:a", []string{"file:a"}, counted(&aCalls, "a2"))
	if err != nil || hit || res.Content != "a2" {
		t.Fatalf("invalidated entry must re-run: res=%q err=%v hit=%v", res.Content, err, hit)
	}
	if _, _, hit := b.Do(context.Background(), "read:b", []string{"file:b"}, counted(&bCalls, "b2")); !hit {
		t.Fatalf("unrelated entry must survive invalidation")
	}
	if aCalls.Load() != 2 || bCalls.Load() != 1 {
		t.Fatalf("calls a=%d b=%d, want 2/1", aCalls.Load(), bCalls.Load())
	}
}

func TestBrokerInvalidateAllClearsCache(t *testing.T) {
	b := newInvocationBroker()
	var calls atomic.Int32
	fn := func(context.Context) (ToolResult, error) {
		calls.Add(1)
		return ToolResult{Content: "v"}, nil
	}
	if _, err, _ := b.Do(context.Background(), "k", []string{"file:a"}, fn); err != nil {
		t.Fatal(err)
	}
	b.InvalidateAll()
	if _, _, hit := b.Do(context.Background(), "k", []string{"file:a"}, fn); hit {
		t.Fatalf("cache must be empty after InvalidateAll")
	}
	if calls.Load() != 2 {
		t.Fatalf("fn ran %d times, want 2", calls.Load())
	}
}

func TestBrokerResourceLockSerializes(t *testing.T) {
	b := newInvocationBroker()
	var inFlight, maxSeen atomic.Int32
	fn := func(context.Context) (ToolResult, error) {
		cur := inFlight.Add(1)
		for {
			seen := maxSeen.Load()
			if cur <= seen || maxSeen.CompareAndSwap(seen, cur) {
				break
			}
		}
		inFlight.Add(-1)
		return ToolResult{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.WithResourceLock(context.Background(), "file.txt", fn); err != nil {
				t.Errorf("WithResourceLock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen.Load() != 1 {
		t.Fatalf("lock admitted %d concurrent holders, want 1", maxSeen.Load())
	}
}

func TestBrokerResourceLocksDeduplicateKeys(t *testing.T) {
	b := newInvocationBroker()
	ran := false
	// Duplicate keys would self-deadlock if acquired twice.
	_, err := b.WithResourceLocks(context.Background(), []string{"a", "b", "a"}, func(context.Context) (ToolResult, error) {
		ran = true
		return ToolResult{}, nil
	})
	if err != nil || !ran {
		t.Fatalf("err=%v ran=%v", err, ran)
	}
}

func TestBrokerResourceLockRespectsCancellation(t *testing.T) {
	b := newInvocationBroker()
	acquired := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = b.WithResourceLock(context.Background(), "r", func(context.Context) (ToolResult, error) {
			close(acquired)
			<-release
			return ToolResult{}, nil
		})
	}()
	<-acquired

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.WithResourceLock(ctx, "r", func(context.Context) (ToolResult, error) {
		t.Error("fn must not run after cancellation")
		return ToolResult{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}
