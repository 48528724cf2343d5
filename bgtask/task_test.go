package bgtask

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartRunsPeriodically(t *testing.T) {
	var calls atomic.Int32

	task, err := Start(context.Background(), 5*time.Millisecond, "counter", func(ctx context.Context) {
		calls.Add(1)
	})
	require.NoError(t, err)
	require.True(t, task.IsRunning())

	time.Sleep(50 * time.Millisecond)
	task.StopSignal()
	task.Wait()

	require.False(t, task.IsRunning())
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestStartTwiceReturnsErrAlreadyRunning(t *testing.T) {
	task, err := Start(context.Background(), time.Hour, "noop", func(ctx context.Context) {})
	require.NoError(t, err)
	defer task.StopForce()

	err = task.start(context.Background(), func(ctx context.Context) {})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopForceInterruptsInFlightCall(t *testing.T) {
	started := make(chan struct{})
	interrupted := make(chan struct{})

	task, err := Start(context.Background(), time.Millisecond, "blocker", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		select {
		case interrupted <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	task.StopForce()

	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("ctx.Done() never fired for in-flight call")
	}

	task.Wait()
	require.False(t, task.IsRunning())
}

func TestParentCancelStopsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	task, err := Start(ctx, time.Millisecond, "parented", func(ctx context.Context) {})
	require.NoError(t, err)

	cancel()
	task.Wait()
	require.False(t, task.IsRunning())
}
