package client

import (
	"sync/atomic"

	"github.com/redixio/redix/pkg/resp"
)

// Callback receives the outcome of one Execute call. A nil reply means the
// command was not executed (client stopped, worker shutting down) or its
// connection failed; a non-nil reply is whatever the server returned,
// including error replies. Callbacks run on the owning worker's loop and
// must not panic.
type Callback func(reply *resp.Reply)

// Request pairs a command with its completion callback. It is the single
// item that crosses the goroutine boundary between callers and a worker;
// ownership moves from the caller through the worker's inbound queue to
// the loop, and the request is dead once its callback has run.
type Request struct {
	cmd  []string
	cb   Callback
	done atomic.Bool
}

func newRequest(cmd []string, cb Callback) *Request {
	return &Request{cmd: cmd, cb: cb}
}

// succeed completes the request with the server's reply.
func (r *Request) succeed(reply *resp.Reply) {
	r.complete(reply)
}

// fail completes the request with a nil reply.
func (r *Request) fail() {
	r.complete(nil)
}

// complete invokes the callback at most once. Both terminal paths funnel
// through the same CAS so a Stop racing a connection failure can never
// fire the callback twice.
func (r *Request) complete(reply *resp.Reply) {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	if r.cb != nil {
		r.cb(reply)
	}
}
