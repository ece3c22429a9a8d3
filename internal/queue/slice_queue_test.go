package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type msgItem struct {
	Data string
}

func TestSliceQueue(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := NewSliceQueue[*msgItem](1)

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())

		item, ok := q.Dequeue()
		assert.False(ok)
		assert.Nil(item)

		item, ok = q.Peek()
		assert.False(ok)
		assert.Nil(item)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := NewSliceQueue[*msgItem](1)

		item1 := &msgItem{"data1"}
		q.Enqueue(item1)
		assert.False(q.IsEmpty())
		assert.Equal(1, q.Length())

		item2 := &msgItem{"data2"}
		q.Enqueue(item2)
		assert.Equal(2, q.Length())

		got, ok := q.Dequeue()
		assert.True(ok)
		assert.Same(item1, got)
		assert.Equal(1, q.Length())

		got, ok = q.Dequeue()
		assert.True(ok)
		assert.Same(item2, got)
		assert.True(q.IsEmpty())

		_, ok = q.Dequeue()
		assert.False(ok)
	})

	t.Run("Peek", func(t *testing.T) {
		q := NewSliceQueue[*msgItem](1)

		item1 := &msgItem{"data1"}
		item2 := &msgItem{"data2"}
		q.Enqueue(item1)

		got, _ := q.Peek()
		assert.Same(item1, got)
		assert.Equal(1, q.Length()) // Length should not change after peek

		q.Enqueue(item2)
		got, _ = q.Peek()
		assert.Same(item1, got)

		q.Dequeue()
		got, _ = q.Peek()
		assert.Same(item2, got)
	})

	t.Run("FIFO across compaction", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		next := 0

		for i := 0; i < 100; i++ {
			q.Enqueue(i)
			if i%3 == 2 {
				v, ok := q.Dequeue()
				assert.True(ok)
				assert.Equal(next, v)
				next++
			}
		}

		for !q.IsEmpty() {
			v, _ := q.Dequeue()
			assert.Equal(next, v)
			next++
		}
		assert.Equal(100, next)
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewSliceQueue[int](2)
		q.Enqueue(1)
		q.Enqueue(2)
		q.Dequeue()
		q.Reset()

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())

		q.Enqueue(3)
		v, ok := q.Dequeue()
		assert.True(ok)
		assert.Equal(3, v)
	})
}

func BenchmarkSliceQueue_100(b *testing.B) {
	q := NewSliceQueue[int](100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 100; j++ {
			q.Enqueue(j)
		}
		for j := 0; j < 100; j++ {
			q.Dequeue()
		}
	}
}
