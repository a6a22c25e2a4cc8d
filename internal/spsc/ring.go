// Package spsc provides the fixed-capacity single-producer single-consumer
// ring buffer used as the transport between pipeline stages. Exactly one
// goroutine may call TryPush and exactly one may call TryPop; under that
// discipline the ring is lock-free and allocation-free after construction.
package spsc

import (
	"fmt"
	"sync/atomic"
)

// Ring is a bounded FIFO queue over a power-of-two backing array. The
// producer owns tail, the consumer owns head; each side reads the other's
// index with an atomic load so a pop never observes a slot before the
// matching push is fully visible.
type Ring[T any] struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []T
	mask  uint64
}

// New returns a ring with the given capacity. Capacity must be a non-zero
// power of two; anything else is a construction-time misconfiguration and
// fails before any stage starts.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("spsc: capacity must be a power of two, got %d", capacity)
	}
	return &Ring[T]{buf: make([]T, capacity), mask: uint64(capacity) - 1}, nil
}

// TryPush appends v and returns true, or returns false without blocking when
// the ring is full. Producer side only.
func (r *Ring[T]) TryPush(v T) bool {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	if t-h == uint64(len(r.buf)) {
		return false
	}
	r.buf[t&r.mask] = v
	atomic.StoreUint64(&r.tail, t+1)
	return true
}

// TryPop removes and returns the oldest item, or returns false without
// blocking when the ring is empty. Consumer side only.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	if h == t {
		return zero, false
	}
	v := r.buf[h&r.mask]
	r.buf[h&r.mask] = zero
	atomic.StoreUint64(&r.head, h+1)
	return v, true
}

// Len reports the number of items currently queued. It is approximate when
// both sides are active.
func (r *Ring[T]) Len() int {
	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	return int(t - h)
}

// Cap reports the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
