// Package eventloop runs the peer coordination control loop.
//
// All directory mutation, RPC dispatch and channel bookkeeping happen on one
// goroutine. Other goroutines (socket readers, store pollers, timers) hand
// work over with Post; nothing else touches loop-owned state, so that state
// needs no locks.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Run when the loop was stopped with Stop.
var ErrStopped = errors.New("eventloop: stopped")

// DefaultQueueSize is the task queue capacity.
const DefaultQueueSize = 4096

// Loop is a single-goroutine task executor.
type Loop struct {
	tasks  chan func()
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// New creates a loop with the given queue capacity.
func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn to run on the loop. It blocks while the queue is full and
// reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopCh:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.stopCh:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.doneCh:
		return ErrStopped
	}
}

// AfterFunc runs fn on the loop after d. The returned timer's Stop
// prevents fn from being queued if it has not fired yet.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Run executes tasks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.doneCh)
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.stopCh:
			return ErrStopped
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("control loop task panicked", "panic", r)
		}
	}()
	fn()
}

// Stop ends Run. Tasks still queued are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}
