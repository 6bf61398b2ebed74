package pipelinemonitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresher_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	r := NewRefresher(time.Hour, func(ctx context.Context) {
		ran <- struct{}{}
	})
	assert.Nil(t, r.Done())
	assert.False(t, r.Running())

	require.NoError(t, r.Start(context.Background()))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run on start")
	}
	assert.True(t, r.Running())
	assert.Equal(t, int64(1), r.Runs())

	r.Stop()
	assert.False(t, r.Running())
	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestRefresher_Ticks(t *testing.T) {
	r := NewRefresher(5*time.Millisecond, func(ctx context.Context) {})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return r.Runs() >= 3
	}, 5*time.Second, time.Millisecond)
}

func TestRefresher_RejectsNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Minute} {
		r := NewRefresher(interval, func(ctx context.Context) {
			t.Error("task must not run")
		})
		assert.ErrorIs(t, r.Start(context.Background()), ErrInvalidInterval)
		assert.False(t, r.Running())
		assert.Nil(t, r.Done())
		r.Stop()
	}
}

func TestRefresher_StartWhileRunning(t *testing.T) {
	r := NewRefresher(time.Hour, func(ctx context.Context) {})
	require.NoError(t, r.Start(context.Background()))

	assert.ErrorIs(t, r.Start(context.Background()), ErrRefresherRunning)

	r.Stop()
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestRefresher_StopCancelsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	r := NewRefresher(time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	require.NoError(t, r.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, cancelled.Load())
}

func TestRefresher_ParentContextEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRefresher(time.Millisecond, func(ctx context.Context) {})
	require.NoError(t, r.Start(ctx))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit after parent cancellation")
	}
	assert.False(t, r.Running())
}

func TestRefresher_StopBeforeStart(t *testing.T) {
	r := NewRefresher(time.Second, func(ctx context.Context) {})
	assert.NotPanics(t, r.Stop)
}

func TestRefresher_RunsDoNotOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	r := NewRefresher(time.Millisecond, func(ctx context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
	})
	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return r.Runs() >= 3
	}, 5*time.Second, time.Millisecond)
	r.Stop()

	assert.Equal(t, int32(1), maxActive.Load())
}
