package client

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redixio/redix/pkg/observability/prometheus"
	"github.com/redixio/redix/pkg/reactor"
	"github.com/redixio/redix/pkg/resp"
)

// Worker status tags, reported by the worker itself.
const (
	statusUnknown int32 = iota
	statusRunning
	statusExiting
)

type shutdownMode int

const (
	modeStop shutdownMode = iota // fail queued requests
	modeJoin                     // dispatch queued requests normally
)

// worker owns one reactor loop and a fixed set of connection slots. All
// slot access and all request dispatch happen on the loop goroutine; the
// only cross-goroutine surface is submit, guarded by mu.
type worker struct {
	id      int
	label   string
	addr    string
	log     *slog.Logger
	dialer  Dialer
	metrics *prometheus.Metrics

	loop *reactor.Loop
	wake *reactor.Wake

	// mu guards pending. A nil pending slice is the publication point
	// telling submitters this worker accepts no further work; while
	// pending is non-nil the wake handle is valid, which is why Signal
	// is called under the same lock. Signal never blocks, so the hold
	// stays brief even when the loop's mailbox is saturated.
	mu      sync.Mutex
	pending []*Request

	// Loop-goroutine state, no synchronization by construction.
	slots    []Conn
	rr       uint64
	inflight int
	exiting  bool
	mode     shutdownMode

	status atomic.Int32
	ready  chan struct{}
	done   chan struct{}
}

func newWorker(id int, addr string, conns int, queueCap int, dialer Dialer, log *slog.Logger, m *prometheus.Metrics) *worker {
	w := &worker{
		id:      id,
		label:   strconv.Itoa(id),
		addr:    addr,
		log:     log.With("worker", id),
		dialer:  dialer,
		metrics: m,
		loop:    reactor.New(queueCap),
		slots:   make([]Conn, conns),
		pending: make([]*Request, 0, 16),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.wake = reactor.NewWake(w.loop, w.drainInbound)
	// Arm before the goroutine exists: Execute calls that land between
	// Start returning and the loop running are buffered, never rejected.
	w.wake.Arm()
	return w
}

// run is the worker goroutine body.
func (w *worker) run() {
	defer close(w.done)

	w.openSlots()
	w.status.Store(statusRunning)
	close(w.ready)
	w.log.Debug("worker running", "slots", len(w.slots))

	w.loop.Run()

	w.closeSlots()
	w.status.Store(statusExiting)
	w.log.Debug("worker exited")
}

func (w *worker) openSlots() {
	for i := range w.slots {
		conn, err := w.dialer.Dial(w.addr, w.loop)
		if err != nil {
			// The slot stays empty; commands routed to it fail with a
			// nil reply until the next Start cycle.
			w.log.Warn("dial failed, slot unusable", "slot", i, "addr", w.addr, "err", err)
			w.metrics.ConnError(w.label)
			continue
		}
		w.metrics.ConnDialed(w.label)
		w.slots[i] = conn
	}
}

func (w *worker) closeSlots() {
	for i, conn := range w.slots {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			w.log.Warn("closing slot", "slot", i, "err", err)
		}
		w.slots[i] = nil
	}
}

// submit hands a request to the worker. Callable from any goroutine.
// Returns false once the worker no longer accepts work; the caller owns
// failing the request in that case.
func (w *worker) submit(req *Request) bool {
	w.mu.Lock()
	if w.pending == nil {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, req)
	w.metrics.QueueDepth(w.label, len(w.pending))
	w.wake.Signal()
	w.mu.Unlock()
	return true
}

// drainInbound runs on the loop whenever the wake handle fires: swap out
// everything queued and dispatch it.
func (w *worker) drainInbound() {
	w.mu.Lock()
	batch := w.pending
	if batch != nil {
		w.pending = make([]*Request, 0, 16)
	}
	w.metrics.QueueDepth(w.label, 0)
	w.mu.Unlock()

	for _, req := range batch {
		w.dispatch(req)
	}
}

// dispatch issues one request on the next slot. Loop goroutine only.
func (w *worker) dispatch(req *Request) {
	slot := w.slots[w.rr%uint64(len(w.slots))]
	w.rr++

	if slot == nil {
		w.metrics.RequestDone(w.label, "failed", 0)
		req.fail()
		return
	}

	w.inflight++
	w.metrics.InFlight(w.label, w.inflight)
	start := time.Now()

	slot.Issue(req.cmd, func(reply *resp.Reply, err error) {
		w.inflight--
		w.metrics.InFlight(w.label, w.inflight)
		if err != nil {
			w.metrics.RequestDone(w.label, "failed", time.Since(start).Seconds())
			w.log.Debug("command failed", "cmd", cmdName(req.cmd), "err", err)
			req.fail()
		} else {
			w.metrics.RequestDone(w.label, "ok", time.Since(start).Seconds())
			req.succeed(reply)
		}
		w.maybeExit()
	})
}

// beginShutdown publishes "no longer accepting", steals whatever is
// queued, and hands the exit sequence to the loop. Called once, from the
// goroutine driving Stop or Join.
func (w *worker) beginShutdown(mode shutdownMode) {
	w.mu.Lock()
	queued := w.pending
	w.pending = nil
	w.metrics.QueueDepth(w.label, 0)
	w.mu.Unlock()

	// The loop is still running here, so Post cannot fail.
	_ = w.loop.Post(func() { w.beginExit(mode, queued) })
}

// beginExit runs on the loop. Queued-but-unsent requests are failed (Stop)
// or issued normally (Join); in-flight requests complete through the
// ordinary callback path before the loop is allowed to stop.
func (w *worker) beginExit(mode shutdownMode, queued []*Request) {
	w.wake.Close()
	w.mode = mode

	if mode == modeStop {
		for _, req := range queued {
			w.metrics.RequestDone(w.label, "rejected", 0)
			req.fail()
		}
	} else {
		for _, req := range queued {
			w.dispatch(req)
		}
	}

	w.exiting = true
	w.maybeExit()
}

func (w *worker) maybeExit() {
	if w.exiting && w.inflight == 0 {
		w.loop.Stop()
	}
}

func cmdName(cmd []string) string {
	if len(cmd) == 0 {
		return "(empty)"
	}
	return cmd[0]
}
