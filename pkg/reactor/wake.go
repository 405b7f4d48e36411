package reactor

import "sync/atomic"

// Wake states. A Wake starts Uninitialized, is armed to Live once its
// loop may be signalled, and is Closed during teardown. Signal checks the
// tag before touching the channel, so signalling concurrently with
// teardown is well defined: it degrades to a no-op.
const (
	WakeUninitialized int32 = iota
	WakeLive
	WakeClosed
)

// Wake lets a non-loop goroutine ask the loop to run the bound callback.
// The signal travels over a dedicated 1-buffered channel the loop selects
// on, separate from the task mailbox, so Signal never blocks even when
// the mailbox is saturated. Signals coalesce: however many arrive before
// the callback runs, it runs once. This mirrors the semantics of a libuv
// async handle.
type Wake struct {
	fn    func()
	ch    chan struct{}
	state atomic.Int32
}

// NewWake binds fn to the loop. Must be called before the loop's Run
// starts; the handle starts Uninitialized, so call Arm before signalling.
func NewWake(loop *Loop, fn func()) *Wake {
	w := &Wake{fn: fn, ch: make(chan struct{}, 1)}
	loop.bindWake(w.ch, w.invoke)
	return w
}

// Arm transitions the handle to Live. Signalling an unarmed handle is a
// no-op rather than an error, so callers may publish the handle before
// arming it.
func (w *Wake) Arm() {
	w.state.CompareAndSwap(WakeUninitialized, WakeLive)
}

// Signal schedules the callback on the loop unless the handle is not
// Live. Safe from any goroutine, any number of times, and never blocks;
// concurrent signals collapse into one callback run.
func (w *Wake) Signal() {
	if w.state.Load() != WakeLive {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *Wake) invoke() {
	if w.state.Load() != WakeLive {
		return
	}
	w.fn()
}

// Close invalidates the handle. Signals after Close are ignored; a
// signal already buffered when the loop drains it observes the Closed
// tag and does nothing.
func (w *Wake) Close() {
	w.state.Store(WakeClosed)
}

// State returns the current tag; useful for assertions and introspection.
func (w *Wake) State() int32 {
	return w.state.Load()
}
