package ring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestBufferPush(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		input    []int
		want     []int
	}{
		{name: "empty", capacity: 3, input: nil, want: []int{}},
		{name: "partial", capacity: 3, input: []int{1, 2}, want: []int{1, 2}},
		{name: "exact", capacity: 3, input: []int{1, 2, 3}, want: []int{1, 2, 3}},
		{name: "wraps", capacity: 3, input: []int{1, 2, 3, 4, 5}, want: []int{3, 4, 5}},
		{name: "zero capacity", capacity: 0, input: []int{7, 8}, want: []int{8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New[int](tt.capacity)
			for _, v := range tt.input {
				b.Push(v)
			}
			if diff := cmp.Diff(tt.want, b.Snapshot()); diff != "" {
				t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBufferPopAndReset(t *testing.T) {
	b := New[int](2)
	assert.False(t, b.Push(1))
	assert.False(t, b.Push(2))
	assert.True(t, b.Push(3))
	assert.True(t, b.Full())

	v, ok := b.Front()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = b.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 3, b.At(0))

	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, ok = b.PopFront()
	assert.False(t, ok)
	assert.Panics(t, func() { b.At(0) })
}
