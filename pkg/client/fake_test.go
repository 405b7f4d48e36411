package client

import (
	"errors"
	"sync"

	"github.com/redixio/redix/pkg/resp"
)

// issuedCmd is one command captured by a fakeConn, with its completion
// held for the test to release.
type issuedCmd struct {
	cmd      []string
	complete func(reply *resp.Reply, err error)
	exec     Executor
}

// release completes the command on the owning worker's loop, the way a
// real connection's reader goroutine would.
func (ic *issuedCmd) release(reply *resp.Reply, err error) {
	_ = ic.exec.Post(func() { ic.complete(reply, err) })
}

// fakeDialer hands out fakeConns and records them in dial order. All
// conns share the dialer's issued channel so tests can observe commands
// going in flight regardless of which slot carried them.
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	issued chan *issuedCmd

	// handle, when set, completes every command asynchronously with its
	// result. Unset means the test drains the issued channel and
	// releases completions by hand.
	handle func(cmd []string) (*resp.Reply, error)

	// issueGate, when set, makes every Issue block until the gate
	// receives a token; this pins the worker loop inside dispatch so
	// tests can pile requests up in the inbound queue.
	issueGate chan struct{}

	failDial bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{issued: make(chan *issuedCmd, 64)}
}

func (d *fakeDialer) Dial(addr string, exec Executor) (Conn, error) {
	if d.failDial {
		return nil, errors.New("dial refused")
	}
	c := &fakeConn{dialer: d, exec: exec}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) connList() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

type fakeConn struct {
	dialer *fakeDialer
	exec   Executor

	mu     sync.Mutex
	cmds   [][]string
	closed bool
}

func (c *fakeConn) Issue(cmd []string, complete func(reply *resp.Reply, err error)) {
	c.mu.Lock()
	c.cmds = append(c.cmds, cmd)
	c.mu.Unlock()

	if h := c.dialer.handle; h != nil {
		reply, err := h(cmd)
		_ = c.exec.Post(func() { complete(reply, err) })
		return
	}

	c.dialer.issued <- &issuedCmd{cmd: cmd, complete: complete, exec: c.exec}
	if gate := c.dialer.issueGate; gate != nil {
		<-gate
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) commands() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.cmds...)
}

// okHandler completes every command with +OK.
func okHandler(cmd []string) (*resp.Reply, error) {
	return &resp.Reply{Type: resp.TypeSimpleString, Str: "OK"}, nil
}

// kvHandler is a tiny in-memory SET/GET store shared by all conns of one
// dialer, for end-to-end shaped tests without a server.
func kvHandler() func(cmd []string) (*resp.Reply, error) {
	var mu sync.Mutex
	store := map[string]string{}
	return func(cmd []string) (*resp.Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		switch cmd[0] {
		case "SET":
			store[cmd[1]] = cmd[2]
			return &resp.Reply{Type: resp.TypeSimpleString, Str: "OK"}, nil
		case "GET":
			v, ok := store[cmd[1]]
			if !ok {
				return &resp.Reply{Type: resp.TypeNil}, nil
			}
			return &resp.Reply{Type: resp.TypeBulkString, Str: v}, nil
		case "PING":
			return &resp.Reply{Type: resp.TypeSimpleString, Str: "PONG"}, nil
		}
		return &resp.Reply{Type: resp.TypeError, Str: "ERR unknown command"}, nil
	}
}
