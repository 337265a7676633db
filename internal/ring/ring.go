// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ring provides the fixed-capacity buffers every sliding window in
// the stroke engine is built on. Pushing into a full buffer overwrites the
// oldest element, so memory stays bounded for arbitrarily long sessions.
package ring

// Buffer is a fixed-capacity FIFO. The zero value is unusable; use New.
type Buffer[T any] struct {
	data  []T
	start int
	size  int
}

// New returns an empty buffer holding at most capacity elements.
// A capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
// It reports whether an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = v
		b.size++
		return false
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % len(b.data)
	return true
}

// PopFront removes and returns the oldest element.
func (b *Buffer[T]) PopFront() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	v := b.data[b.start]
	b.data[b.start] = zero
	b.start = (b.start + 1) % len(b.data)
	b.size--
	return v, true
}

// Front returns the oldest element without removing it.
func (b *Buffer[T]) Front() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}
	return b.data[b.start], true
}

// At returns the i-th element counted from the oldest one.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ring: index out of range")
	}
	return b.data[(b.start+i)%len(b.data)]
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.data) }

func (b *Buffer[T]) Full() bool { return b.size == len(b.data) }

// Snapshot copies the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := range out {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Reset drops every element but keeps the allocated storage.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.start = 0
	b.size = 0
}
