package newer

import (
	"context"
	"sync"
)

// memo is a lazily computed value shared by concurrent callers. The first
// Get runs fn on the caller's goroutine; later callers wait for that result
// or give up when their own context ends. A result is kept for the life of
// the memo, except one produced after the computing caller's context ended:
// that attempt is dropped and the next caller, or a waiter, computes again.
type memo[T any] struct {
	fn func(context.Context) (T, error)

	mu   sync.Mutex
	call *memoCall[T]
}

type memoCall[T any] struct {
	done      chan struct{}
	val       T
	err       error
	abandoned bool
}

func newMemo[T any](fn func(context.Context) (T, error)) *memo[T] {
	return &memo[T]{fn: fn}
}

func (m *memo[T]) Get(ctx context.Context) (T, error) {
	for {
		m.mu.Lock()
		c := m.call
		if c == nil {
			c = &memoCall[T]{done: make(chan struct{})}
			m.call = c
			m.mu.Unlock()
			return m.compute(ctx, c)
		}
		m.mu.Unlock()

		select {
		case <-c.done:
			if c.abandoned {
				continue
			}
			return c.val, c.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (m *memo[T]) compute(ctx context.Context, c *memoCall[T]) (T, error) {
	c.val, c.err = m.fn(ctx)
	if c.err != nil && ctx.Err() != nil {
		c.abandoned = true
		m.mu.Lock()
		m.call = nil
		m.mu.Unlock()
	}
	close(c.done)
	return c.val, c.err
}

// Peek returns the value if it has been computed.
func (m *memo[T]) Peek() (T, bool) {
	m.mu.Lock()
	c := m.call
	m.mu.Unlock()

	var zero T
	if c == nil {
		return zero, false
	}
	select {
	case <-c.done:
		if c.abandoned || c.err != nil {
			return zero, false
		}
		return c.val, true
	default:
		return zero, false
	}
}
