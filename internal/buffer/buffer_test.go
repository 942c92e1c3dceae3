package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1mqtt/p1mqtt/internal/p1"
)

func rec(ch int) *p1.Record {
	return &p1.Record{Channel: ch, Fields: map[string]any{}}
}

func TestPushPopOrder(t *testing.T) {
	b := New(10, nil)
	for i := 0; i < 3; i++ {
		assert.False(t, b.Push(rec(i)))
	}
	require.Equal(t, 3, b.Len())

	for i := 0; i < 3; i++ {
		r, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, i, r.Channel)
	}
	_, ok := b.Pop()
	assert.False(t, ok)
}

func TestPushEvictsOldest(t *testing.T) {
	b := New(3, nil)
	dropped := 0
	for i := 0; i < 5; i++ {
		if b.Push(rec(i)) {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)
	require.Equal(t, 3, b.Len())

	// The two oldest records are gone.
	r, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, r.Channel)
}

func TestDrain(t *testing.T) {
	b := New(10, nil)
	for i := 0; i < 4; i++ {
		b.Push(rec(i))
	}

	recs := b.Drain()
	require.Len(t, recs, 4)
	for i, r := range recs {
		assert.Equal(t, i, r.Channel)
	}
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Drain())
}

func TestWaitReturnsImmediatelyWhenNonEmpty(t *testing.T) {
	b := New(10, nil)
	b.Push(rec(0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, b.Wait(ctx))
}

func TestWaitWakesOnPush(t *testing.T) {
	b := New(10, nil)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- b.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Push(rec(0))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake on push")
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	b := New(10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}

func TestMinimumCapacity(t *testing.T) {
	b := New(0, nil)
	b.Push(rec(1))
	assert.True(t, b.Push(rec(2)), "capacity is clamped to one slot")

	r, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, r.Channel)
}

func TestConcurrentPushPop(t *testing.T) {
	const n = 500
	b := New(n, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Push(rec(i))
		}
	}()

	popped := 0
	deadline := time.After(5 * time.Second)
	for popped < n {
		if _, ok := b.Pop(); ok {
			popped++
			continue
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for records")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	assert.Zero(t, b.Len())
}
