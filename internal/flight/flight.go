// Package flight collapses concurrent loads of the same key into one execution.
//
// Unlike a plain singleflight, the load runs on a context detached from the
// caller that started it: any caller may stop waiting (its context ends) without
// affecting the others. The load context is cancelled only once no waiter is
// left, and the abandoned record is dropped at that moment so the next caller
// starts a fresh load. Results are never replayed across time: the record is
// removed as soon as the load finishes.
package flight

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError is delivered to every waiter when the load function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hybridcache: loader panic: %v", e.Value)
}

type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Group deduplicates in-flight loads by key. The zero value is ready to use.
type Group[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

// Do runs fn once for all concurrent callers of key and returns its result.
// shared is true when this caller joined a load started by another caller.
// If ctx ends first, Do returns ctx.Err() for this caller only.
func (g *Group[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		v, err = g.wait(ctx, key, c)
		return v, err, true
	}
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call[V]{done: make(chan struct{}), waiters: 1, cancel: cancel}
	g.calls[key] = c
	g.mu.Unlock()

	go g.run(lctx, key, c, fn)

	v, err = g.wait(ctx, key, c)
	return v, err, false
}

func (g *Group[V]) run(ctx context.Context, key string, c *call[V], fn func(context.Context) (V, error)) {
	defer c.cancel()
	defer func() {
		if r := recover(); r != nil {
			var zero V
			c.val, c.err = zero, &PanicError{Value: r, Stack: debug.Stack()}
		}
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}

func (g *Group[V]) wait(ctx context.Context, key string, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	c.waiters--
	abandoned := c.waiters == 0
	if abandoned && g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()
	if abandoned {
		c.cancel()
	}

	select {
	case <-c.done:
		return c.val, c.err
	default:
	}
	var zero V
	return zero, ctx.Err()
}

// Forget drops the in-flight record for key. Callers arriving afterwards start
// a new load; current waiters still receive the old result.
func (g *Group[V]) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// Waiters returns the number of callers currently waiting on key (0 if idle).
func (g *Group[V]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// Len is the number of loads in flight.
func (g *Group[V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
