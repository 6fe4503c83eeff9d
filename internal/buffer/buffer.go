// Package buffer implements the bounded in-memory queue that holds captured
// events until the next flush.
//
// When the queue is full the oldest item is dropped. Appends never block on
// anything but the queue mutex.
package buffer

import "sync"

const DefaultCapacity = 100

type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// New returns an empty buffer. Non-positive capacities fall back to DefaultCapacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{capacity: capacity, items: make([]T, 0, capacity)}
}

// Append adds item at the tail and reports whether the oldest item was dropped
// to make room.
func (b *Buffer[T]) Append(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return b.trimLocked() > 0
}

// Drain removes and returns everything currently queued, oldest first.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = make([]T, 0, b.capacity)
	return out
}

// Requeue puts staged items back in front of anything appended since they were
// drained. It returns how many of the oldest items were dropped to stay within
// capacity.
func (b *Buffer[T]) Requeue(staged []T) int {
	if len(staged) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := make([]T, 0, len(staged)+len(b.items))
	merged = append(merged, staged...)
	merged = append(merged, b.items...)
	b.items = merged
	return b.trimLocked()
}

func (b *Buffer[T]) trimLocked() int {
	over := len(b.items) - b.capacity
	if over <= 0 {
		return 0
	}
	var zero T
	for i := 0; i < over; i++ {
		b.items[i] = zero
	}
	b.items = b.items[over:]
	b.dropped += uint64(over)
	return over
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Buffer[T]) Cap() int { return b.capacity }

// Dropped is the total number of items lost to overflow.
func (b *Buffer[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
