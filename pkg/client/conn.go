package client

import "github.com/redixio/redix/pkg/resp"

// Executor posts work onto a worker's reactor loop. Connection
// implementations use it to deliver completions back on the goroutine
// that issued the command. *reactor.Loop satisfies it.
type Executor interface {
	Post(fn func()) error
}

// Conn is one connection slot: a pipelined connection to the server,
// owned exclusively by one worker. Issue is only ever called from the
// owning worker's loop; the completion must be delivered on that same
// loop (via the Executor given at dial time), exactly once per Issue,
// with err non-nil when the connection could not produce a reply.
//
// Reconnection policy belongs to the implementation: a broken connection
// fails its in-flight completions and may re-establish itself on a later
// Issue. The worker never removes a slot.
type Conn interface {
	Issue(cmd []string, complete func(reply *resp.Reply, err error))
	Close() error
}

// Dialer creates the connection slots for a worker. Dial runs on the
// worker goroutine during startup; an error leaves the slot unusable
// (commands routed to it fail) but does not stop the worker.
type Dialer interface {
	Dial(addr string, exec Executor) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(addr string, exec Executor) (Conn, error)

func (f DialerFunc) Dial(addr string, exec Executor) (Conn, error) {
	return f(addr, exec)
}
