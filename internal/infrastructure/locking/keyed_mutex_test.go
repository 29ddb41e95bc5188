package locking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()
	var inside, maxInside int32
	counter := 0

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			unlock, err := km.Lock(context.Background(), "user:u1")
			if err != nil {
				return err
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			counter++
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 50, counter)
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := km.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	km := NewKeyedMutex()
	unlock, err := km.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "k")
	assert.ErrorIs(t, err, shared.ErrLockTimeout)
	assert.True(t, shared.IsRetryable(err))

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, km.Len())
}
