// Package conn provides the default connection slot implementation: a
// pipelined RESP connection over TCP.
package conn

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/redixio/redix/pkg/client"
	"github.com/redixio/redix/pkg/resp"
)

// ErrClosed is the completion error for commands issued on a closed slot.
var ErrClosed = errors.New("conn: closed")

type completion func(reply *resp.Reply, err error)

// Pipeline is one pipelined connection to the server. Issue writes the
// command and records the completion in an in-flight FIFO; a reader
// goroutine parses replies in arrival order, which the protocol
// guarantees equals issue order, pops the matching completion and posts
// it back to the worker loop. A broken connection fails exactly its
// in-flight completions and is re-established on the next Issue.
type Pipeline struct {
	addr    string
	timeout time.Duration
	exec    client.Executor

	// mu guards everything below; held briefly by the loop goroutine
	// (Issue, Close) and the reader goroutine, never across I/O waits
	// other than the command write itself.
	mu       sync.Mutex
	nc       net.Conn
	bw       *bufio.Writer
	inflight []completion
	gen      uint64 // bumped on teardown so a stale reader cannot touch a fresh connection
	closed   bool
}

// New creates a pipeline for addr and attempts an initial connection.
// The attempt is best-effort: on failure the pipeline starts broken and
// the first Issue redials.
func New(addr string, timeout time.Duration, exec client.Executor) *Pipeline {
	p := &Pipeline{
		addr:    addr,
		timeout: timeout,
		exec:    exec,
	}
	p.mu.Lock()
	_ = p.connectLocked()
	p.mu.Unlock()
	return p
}

// connectLocked dials and starts the reader for the new connection.
func (p *Pipeline) connectLocked() error {
	nc, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		return err
	}
	p.nc = nc
	p.bw = bufio.NewWriter(nc)
	go p.read(nc, p.gen)
	return nil
}

// Issue sends cmd and arranges for complete to run on the worker loop
// with either the parsed reply or an error. Immediate failures (closed
// slot, dial or write error) invoke complete synchronously, which is
// still on the loop since Issue is only called there.
func (p *Pipeline) Issue(cmd []string, complete func(reply *resp.Reply, err error)) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		complete(nil, ErrClosed)
		return
	}
	if p.nc == nil {
		if err := p.connectLocked(); err != nil {
			p.mu.Unlock()
			complete(nil, err)
			return
		}
	}

	p.inflight = append(p.inflight, complete)
	err := resp.WriteCommand(p.bw, cmd)
	if err == nil {
		err = p.bw.Flush()
	}
	if err != nil {
		// The write may have been partial; the whole connection is
		// suspect. Everything in flight, this command included, fails.
		failed := p.teardownLocked()
		p.mu.Unlock()
		for _, fn := range failed {
			fn(nil, err)
		}
		return
	}

	p.mu.Unlock()
}

// read is the reader goroutine for one connection generation.
func (p *Pipeline) read(nc net.Conn, gen uint64) {
	br := bufio.NewReader(nc)
	for {
		reply, err := resp.ReadReply(br)

		p.mu.Lock()
		if p.gen != gen {
			// A newer generation owns the pipeline; this connection was
			// already torn down and its in-flight completions failed.
			p.mu.Unlock()
			return
		}
		if err == nil && len(p.inflight) == 0 {
			// A reply nobody asked for; the stream is unusable.
			err = resp.ErrProtocol
		}
		if err != nil {
			failed := p.teardownLocked()
			p.mu.Unlock()
			for _, fn := range failed {
				p.deliver(fn, nil, err)
			}
			return
		}

		fn := p.inflight[0]
		p.inflight = p.inflight[1:]
		p.mu.Unlock()

		p.deliver(fn, reply, nil)
	}
}

// deliver posts a completion to the worker loop. If the loop is already
// gone the completion runs inline; that only happens on the teardown
// path, where the caller is the goroutine that owned the loop.
func (p *Pipeline) deliver(fn completion, reply *resp.Reply, err error) {
	if postErr := p.exec.Post(func() { fn(reply, err) }); postErr != nil {
		fn(reply, err)
	}
}

// teardownLocked closes the connection, bumps the generation and detaches
// the in-flight list. The caller fails the returned completions after
// releasing the lock.
func (p *Pipeline) teardownLocked() []completion {
	if p.nc != nil {
		p.nc.Close()
		p.nc = nil
		p.bw = nil
	}
	p.gen++
	failed := p.inflight
	p.inflight = nil
	return failed
}

// Close tears the connection down. Commands issued afterwards fail with
// ErrClosed; in-flight completions, if any remain, fail with ErrClosed
// too. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	failed := p.teardownLocked()
	p.mu.Unlock()

	for _, fn := range failed {
		p.deliver(fn, nil, ErrClosed)
	}
	return nil
}

// Dialer creates Pipeline slots. It implements client.Dialer.
type Dialer struct {
	// Timeout bounds each connection attempt. Zero means no limit.
	Timeout time.Duration
}

// Dial opens a pipeline slot for addr. It never fails: an unreachable
// server yields a slot in the broken state, and the slot recovers by
// redialing on a later Issue.
func (d Dialer) Dial(addr string, exec client.Executor) (client.Conn, error) {
	return New(addr, d.Timeout, exec), nil
}
