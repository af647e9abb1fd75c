package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/security-zone/internal/logger"
)

// ErrClosed is returned when work is posted to a loop that has stopped.
var ErrClosed = errors.New("loop is closed")

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from being posted. It reports false when
	// the timer already fired or was stopped.
	Stop() bool
}

// Loop executes posted callbacks one at a time in FIFO order.
type Loop struct {
	// mu protects queue and closed.
	mu sync.Mutex
	// queue holds callbacks waiting to run.
	queue []func()
	// closed is set once Run returns.
	closed bool
	// wake signals Run that the queue is not empty.
	wake chan struct{}
}

// New creates an idle loop. Callbacks run once Run is started.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Post queues fn for execution. It never blocks and reports false when the
// loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return false
	}

	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// Do posts fn and waits until it has run. It must not be called from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts fn to the loop once d has elapsed.
//
//nolint:ireturn // Callers depend on the Timer abstraction to allow fakes.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Run executes queued callbacks until ctx is canceled. Pending callbacks are
// dropped on exit and later posts are rejected.
func (l *Loop) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "loop")

	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}

			for _, fn := range batch {
				if ctx.Err() != nil {
					return nil
				}

				l.run(ctx, fn)
			}
		}
	}
}

// run executes one callback and keeps the loop alive if it panics.
func (l *Loop) run(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Loop callback panicked", "panic", r)
		}
	}()

	fn()
}
