// Package bgtask runs a function on a fixed period in the background,
// with both a cooperative and a forced stop path.
package bgtask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gochaorg/logd/internal/logging"
)

// ErrAlreadyRunning is returned by Start when the task is already active.
var ErrAlreadyRunning = errors.New("bgtask: already running")

// Task drives a periodic function call in its own goroutine.
type Task struct {
	mu sync.Mutex

	name    string
	period  time.Duration
	running atomic.Bool

	softCancel  context.CancelFunc
	forceCancel context.CancelFunc
	done        chan struct{}

	logger *logging.Logger
}

// Start launches f to run once per period, first after one full period
// has elapsed, until StopSignal or StopForce is called. f is expected to select
// on ctx.Done() so StopForce can interrupt an in-flight call.
func Start(ctx context.Context, period time.Duration, name string, f func(context.Context)) (*Task, error) {
	t := &Task{
		name:   name,
		period: period,
		logger: logging.Default(),
	}
	if err := t.start(ctx, f); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) start(parent context.Context, f func(context.Context)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return ErrAlreadyRunning
	}

	softCtx, softCancel := context.WithCancel(parent)
	forceCtx, forceCancel := context.WithCancel(parent)
	t.softCancel = softCancel
	t.forceCancel = forceCancel
	t.done = make(chan struct{})
	t.running.Store(true)

	t.logger.Info("starting bg task", "name", t.name)

	go func() {
		defer close(t.done)
		defer t.running.Store(false)
		defer forceCancel()

		ticker := time.NewTicker(t.period)
		defer ticker.Stop()

		for {
			select {
			case <-softCtx.Done():
				t.logger.Info("stopped bg task", "name", t.name)
				return
			case <-ticker.C:
			}

			select {
			case <-softCtx.Done():
				t.logger.Info("stopped bg task", "name", t.name)
				return
			default:
			}

			t.logger.Debug("running bg task", "name", t.name)
			f(forceCtx)
		}
	}()

	return nil
}

// IsRunning reports whether the task's goroutine is still active.
func (t *Task) IsRunning() bool {
	return t.running.Load()
}

// StopSignal cancels the soft context checked at the top of each tick.
// A call to f already in flight runs to completion.
func (t *Task) StopSignal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running.Load() {
		return
	}
	t.logger.Info("stop_signal", "name", t.name)
	t.softCancel()
}

// StopForce cancels the context passed into an in-flight f call directly,
// for callers whose f selects on ctx.Done() to abort immediately.
func (t *Task) StopForce() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running.Load() {
		return
	}
	t.logger.Info("stop_force", "name", t.name)
	t.softCancel()
	t.forceCancel()
}

// Wait blocks until the task's goroutine has exited.
func (t *Task) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}
