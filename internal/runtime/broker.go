package runtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

// invocationBroker deduplicates read-only tool calls within one execution and
// serializes writes touching the same resource. Cached results are tagged with
// the resource keys they were derived from so writes can invalidate them;
// ToolResult is value-copied so callers cannot mutate shared state.
type invocationBroker struct {
	mu       sync.Mutex
	cache    map[string]brokerEntry
	inflight map[string]*brokerInflight
	locks    map[string]*brokerKeyLock
}

type brokerEntry struct {
	result    ToolResult
	resources []string
	cachedAt  time.Time
}

type brokerInflight struct {
	done   chan struct{}
	result ToolResult
	err    error
}

type brokerKeyLock struct {
	ch chan struct{}
}

func newInvocationBroker() *invocationBroker {
	return &invocationBroker{
		cache:    map[string]brokerEntry{},
		inflight: map[string]*brokerInflight{},
		locks:    map[string]*brokerKeyLock{},
	}
}

// Do deduplicates tool executions sharing a cache key. resources names the
// resource keys the result depends on; a later Invalidate on any of them
// drops the cached entry. cacheHit is true when the result came from cache or
// from a coalesced in-flight call.
func (b *invocationBroker) Do(ctx context.Context, key string, resources []string, fn func(context.Context) (ToolResult, error)) (result ToolResult, err error, cacheHit bool) {
	if b == nil || key == "" {
		r, e := fn(ctx)
		return r, e, false
	}

	b.mu.Lock()
	if entry, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return entry.result, nil, true
	}
	if inf, ok := b.inflight[key]; ok {
		b.mu.Unlock()
		select {
		case <-inf.done:
			return inf.result, inf.err, true
		case <-ctx.Done():
			return ToolResult{}, ctx.Err(), false
		}
	}
	inf := &brokerInflight{done: make(chan struct{})}
	b.inflight[key] = inf
	b.mu.Unlock()

	r, e := fn(ctx)

	b.mu.Lock()
	delete(b.inflight, key)
	inf.result = r
	inf.err = e
	if e == nil {
		b.cache[key] = brokerEntry{result: r, resources: resources, cachedAt: time.Now()}
	}
	close(inf.done)
	b.mu.Unlock()
	return r, e, false
}

// Invalidate drops every cached result whose recorded resource keys intersect
// keys. Writes call this after committing so reads never serve pre-write
// content.
func (b *invocationBroker) Invalidate(keys []string) {
	if b == nil || len(keys) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for cacheKey, entry := range b.cache {
		if intersects(entry.resources, keys) {
			delete(b.cache, cacheKey)
		}
	}
}

// InvalidateAll clears the whole result cache. Used after writes with an
// unbounded footprint, such as shell commands.
func (b *invocationBroker) InvalidateAll() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.cache)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// WithResourceLock serializes fn against other calls locking the same
// resource key. Lock acquisition respects ctx cancellation.
func (b *invocationBroker) WithResourceLock(ctx context.Context, key string, fn func(context.Context) (ToolResult, error)) (ToolResult, error) {
	if b == nil || key == "" {
		return fn(ctx)
	}
	lk := b.resourceLock(key)
	select {
	case <-lk.ch:
	case <-ctx.Done():
		return ToolResult{}, ctx.Err()
	}
	defer func() {
		lk.ch <- struct{}{}
	}()
	return fn(ctx)
}

// WithResourceLocks acquires several resource locks in sorted key order to
// avoid lock-order inversions between concurrent multi-resource calls.
func (b *invocationBroker) WithResourceLocks(ctx context.Context, keys []string, fn func(context.Context) (ToolResult, error)) (ToolResult, error) {
	if b == nil || len(keys) == 0 {
		return fn(ctx)
	}
	if len(keys) == 1 {
		return b.WithResourceLock(ctx, keys[0], fn)
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	// Drop duplicates so one call never waits on a lock it already holds.
	uniq := sorted[:1]
	for _, key := range sorted[1:] {
		if key != uniq[len(uniq)-1] {
			uniq = append(uniq, key)
		}
	}
	sorted = uniq
	wrapped := fn
	for i := len(sorted) - 1; i >= 0; i-- {
		key := sorted[i]
		next := wrapped
		wrapped = func(c context.Context) (ToolResult, error) {
			return b.WithResourceLock(c, key, next)
		}
	}
	return wrapped(ctx)
}

func (b *invocationBroker) resourceLock(key string) *brokerKeyLock {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lk, ok := b.locks[key]; ok {
		return lk
	}
	lk := &brokerKeyLock{ch: make(chan struct{}, 1)}
	lk.ch <- struct{}{}
	b.locks[key] = lk
	return lk
}
