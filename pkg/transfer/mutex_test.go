package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexSingleHolder(t *testing.T) {
	mu := NewMutex()

	var holders, peak atomic.Int64
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := mu.Lock(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := holders.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			counter++
			holders.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, int64(1), peak.Load())
}

func TestMutexServesWaitersInArrivalOrder(t *testing.T) {
	mu := NewMutex()
	unlock, err := mu.Lock(context.Background())
	require.NoError(t, err)

	var (
		orderMu sync.Mutex
		order   []int
		wg      sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := mu.Lock(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			orderMu.Lock()
			order = append(order, i)
			orderMu.Unlock()
		}()
		// let waiter i enqueue before the next one arrives
		time.Sleep(20 * time.Millisecond)
	}

	unlock()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestMutexLockHonoursContext(t *testing.T) {
	mu := NewMutex()
	unlock, err := mu.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = mu.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	again, err := mu.Lock(context.Background())
	require.NoError(t, err)
	again()
}

func TestMutexUnlockIsIdempotent(t *testing.T) {
	mu := NewMutex()

	unlock, err := mu.Lock(context.Background())
	require.NoError(t, err)
	unlock()
	unlock()

	// a second release would have let two holders in
	first, err := mu.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = mu.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	first()
}
