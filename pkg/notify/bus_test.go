package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := New[int](nil, 4)
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-a)
	assert.Equal(t, 2, <-a)
	assert.Equal(t, 1, <-c)
	assert.Equal(t, 2, <-c)
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New[int](nil, 1)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(1)
	b.Publish(2) // dropped, must not block

	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New[string](nil, 0)
	ch, cancel := b.Subscribe()
	require.Equal(t, 1, b.Len())

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())

	b.Publish("ignored")
}

func TestClose(t *testing.T) {
	b := New[int](nil, 0)
	ch, cancel := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	cancel() // after Close is harmless

	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	b.Publish(1)
}
