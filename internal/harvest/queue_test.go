package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push("a.gov")
	q.Push("b.gov")
	q.Push("c.gov")
	q.Stop()

	for _, want := range []string{"a.gov", "b.gov", "c.gov"} {
		got, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "drained stopped queue releases workers")
}

func TestQueueDeduplicates(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Push("a.gov"))
	assert.False(t, q.Push("a.gov"))
	assert.Equal(t, 1, q.Size())
}

func TestQueueRejectsPushAfterStop(t *testing.T) {
	q := NewQueue()
	q.Stop()
	assert.False(t, q.Push("a.gov"))
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()

	got := make(chan string, 1)
	go func() {
		d, ok := q.Pop()
		if ok {
			got <- d
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("late.gov")

	select {
	case d := <-got:
		assert.Equal(t, "late.gov", d)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}
