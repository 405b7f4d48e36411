// Package reactor provides the single-goroutine cooperative event loop
// the client's workers run on, plus the wake primitive other goroutines
// use to nudge a sleeping loop.
package reactor

import "sync/atomic"

// Loop is a cooperative scheduler. Exactly one goroutine calls Run and
// becomes the loop goroutine; every posted task executes there, so tasks
// never need synchronization among themselves.
type Loop struct {
	tasks   chan func()
	quit    chan struct{}
	stopped atomic.Bool

	// Wake binding, set once before Run via bindWake. A nil wakeC makes
	// that select case block forever, so an unbound loop behaves as if
	// the case were absent.
	wakeC  <-chan struct{}
	onWake func()
}

// New creates a loop with the given mailbox capacity.
func New(capacity int) *Loop {
	if capacity < 1 {
		capacity = 128
	}
	return &Loop{
		tasks: make(chan func(), capacity),
		quit:  make(chan struct{}),
	}
}

// Post submits fn for execution on the loop goroutine. It is safe to call
// from any goroutine, including before Run has started; tasks queued early
// execute once Run begins. Post blocks while the mailbox is full and
// returns ErrStopped once the loop has been stopped.
func (l *Loop) Post(fn func()) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.quit:
		return ErrStopped
	}
}

// TryPost is Post without blocking: a full mailbox yields ErrBackpressure.
func (l *Loop) TryPost(fn func()) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.quit:
		return ErrStopped
	default:
		return ErrBackpressure
	}
}

// bindWake attaches a wake channel and its callback to the loop. Not
// safe to call once Run has started.
func (l *Loop) bindWake(ch <-chan struct{}, fn func()) {
	l.wakeC = ch
	l.onWake = fn
}

// Run executes tasks, and the wake callback when signalled, until Stop is
// called, then drains whatever is still queued and returns. The calling
// goroutine owns the loop for the entire call.
func (l *Loop) Run() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.wakeC:
			l.onWake()
		case <-l.quit:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		default:
			return
		}
	}
}

// Stop makes Run return after draining queued tasks. Idempotent; callable
// from any goroutine, including the loop goroutine itself.
func (l *Loop) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.quit)
	}
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}
