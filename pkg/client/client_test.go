package client

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redixio/redix/pkg/config"
	"github.com/redixio/redix/pkg/resp"
)

func testConfig(threads, conns int) config.Config {
	cfg := config.Default()
	cfg.Threads = threads
	cfg.ConnsPerThread = conns
	return cfg
}

func awaitReply(t *testing.T, ch <-chan *resp.Reply) *resp.Reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire")
		return nil
	}
}

// execWait runs one command and waits for its callback.
func execWait(t *testing.T, c *Client, cmd ...string) *resp.Reply {
	t.Helper()
	done := make(chan *resp.Reply, 1)
	c.Execute(cmd, func(reply *resp.Reply) { done <- reply })
	return awaitReply(t, done)
}

// waitNotAccepting blocks until w has published its nil inbound queue.
func waitNotAccepting(t *testing.T, w *worker) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		w.mu.Lock()
		rejected := w.pending == nil
		w.mu.Unlock()
		if rejected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never stopped accepting")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClient_StartStopLifecycle(t *testing.T) {
	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(2, 2), WithDialer(d))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() after Stop error = %v, want ErrNotStarted", err)
	}
}

func TestClient_StopJoinWithoutStart(t *testing.T) {
	c := New(testConfig(1, 1), WithDialer(newFakeDialer()))
	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() = %v, want ErrNotStarted", err)
	}
	if err := c.Join(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Join() = %v, want ErrNotStarted", err)
	}
}

func TestClient_StartValidatesConfig(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.Threads = -1
	c := New(cfg, WithDialer(newFakeDialer()))
	if err := c.Start(); err == nil {
		t.Fatal("Start() with invalid config = nil error")
	}
	// The failed Start must not leave the client stuck mid-transition.
	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() after failed Start = %v, want ErrNotStarted", err)
	}
}

func TestClient_ExecuteBeforeStartFailsFast(t *testing.T) {
	c := New(testConfig(1, 1), WithDialer(newFakeDialer()))

	fired := false
	c.Execute([]string{"PING"}, func(reply *resp.Reply) {
		fired = true
		if reply != nil {
			t.Errorf("reply = %+v, want nil", reply)
		}
	})
	// The rejection path is synchronous, so no waiting is needed.
	if !fired {
		t.Error("callback did not fire synchronously")
	}
}

func TestClient_ExecuteEndToEnd(t *testing.T) {
	d := newFakeDialer()
	d.handle = kvHandler()
	c := New(testConfig(1, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if r := execWait(t, c, "SET", "k1", "v1"); r == nil || r.Str != "OK" {
		t.Fatalf("SET reply = %+v", r)
	}
	if r := execWait(t, c, "GET", "k1"); r == nil || r.Str != "v1" {
		t.Fatalf("GET reply = %+v", r)
	}
}

func TestClient_RoundRobinAcrossWorkers(t *testing.T) {
	const threads = 3
	const total = 9

	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(threads, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	var wg sync.WaitGroup
	wg.Add(total)
	for k := 0; k < total; k++ {
		c.Execute([]string{"ECHO", strconv.Itoa(k)}, func(reply *resp.Reply) { wg.Done() })
	}
	wg.Wait()

	// With one conn per worker, each conn's command indices must all be
	// congruent modulo the worker count, and the residues must cover
	// every worker: the k-th call lands on worker k mod threads.
	conns := d.connList()
	if len(conns) != threads {
		t.Fatalf("dialed %d conns, want %d", len(conns), threads)
	}
	seen := map[int]bool{}
	for _, conn := range conns {
		cmds := conn.commands()
		if len(cmds) != total/threads {
			t.Fatalf("conn carried %d commands, want %d", len(cmds), total/threads)
		}
		residue := -1
		for _, cmd := range cmds {
			k, _ := strconv.Atoi(cmd[1])
			if residue == -1 {
				residue = k % threads
			} else if k%threads != residue {
				t.Errorf("conn mixes residues: %v", cmds)
			}
		}
		seen[residue] = true
	}
	if len(seen) != threads {
		t.Errorf("residues covered = %v, want all %d workers", seen, threads)
	}
}

func TestClient_RoundRobinAcrossSlots(t *testing.T) {
	const slots = 3
	const total = 6

	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(1, slots), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	var wg sync.WaitGroup
	wg.Add(total)
	for k := 0; k < total; k++ {
		c.Execute([]string{"ECHO", strconv.Itoa(k)}, func(reply *resp.Reply) { wg.Done() })
	}
	wg.Wait()

	// One worker dials its slots in order, so dial order is slot order:
	// the k-th dispatched command lands on slot k mod slots.
	conns := d.connList()
	if len(conns) != slots {
		t.Fatalf("dialed %d conns, want %d", len(conns), slots)
	}
	for i, conn := range conns {
		var want [][]string
		for k := i; k < total; k += slots {
			want = append(want, []string{"ECHO", strconv.Itoa(k)})
		}
		got := conn.commands()
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("slot %d carried %v, want %v", i, got, want)
		}
	}
}

func TestClient_StopDropsQueuedCompletesInFlight(t *testing.T) {
	d := newFakeDialer()
	d.issueGate = make(chan struct{})
	c := New(testConfig(1, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	aDone := make(chan *resp.Reply, 1)
	c.Execute([]string{"GET", "a"}, func(reply *resp.Reply) { aDone <- reply })

	// A is now in flight and the worker loop is pinned inside its
	// dispatch, so B stays in the inbound queue.
	aIssued := <-d.issued
	bDone := make(chan *resp.Reply, 1)
	c.Execute([]string{"GET", "b"}, func(reply *resp.Reply) { bDone <- reply })

	w := (*c.workers.Load())[0]
	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()

	// Wait for Stop to publish "no longer accepting" so B cannot be
	// dispatched once the loop is unpinned.
	waitNotAccepting(t, w)

	// Unpin the loop; the worker now processes the exit sequence.
	d.issueGate <- struct{}{}

	// B was queued but never sent: nil reply.
	if r := awaitReply(t, bDone); r != nil {
		t.Errorf("queued command reply = %+v, want nil", r)
	}

	// A is still awaiting its reply, so Stop must not have returned.
	select {
	case err := <-stopped:
		t.Fatalf("Stop() returned %v before in-flight command completed", err)
	case <-time.After(50 * time.Millisecond):
	}

	aIssued.release(&resp.Reply{Type: resp.TypeBulkString, Str: "va"}, nil)
	if r := awaitReply(t, aDone); r == nil || r.Str != "va" {
		t.Errorf("in-flight command reply = %+v, want va", r)
	}
	if err := <-stopped; err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestClient_JoinDrainsQueuedNormally(t *testing.T) {
	d := newFakeDialer()
	d.issueGate = make(chan struct{})
	c := New(testConfig(1, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	aDone := make(chan *resp.Reply, 1)
	c.Execute([]string{"GET", "a"}, func(reply *resp.Reply) { aDone <- reply })
	aIssued := <-d.issued

	bDone := make(chan *resp.Reply, 1)
	c.Execute([]string{"GET", "b"}, func(reply *resp.Reply) { bDone <- reply })

	w := (*c.workers.Load())[0]
	joined := make(chan error, 1)
	go func() { joined <- c.Join() }()
	waitNotAccepting(t, w)

	// Unpin A's dispatch; the exit sequence then issues B for real.
	d.issueGate <- struct{}{}
	bIssued := <-d.issued
	d.issueGate <- struct{}{}

	aIssued.release(&resp.Reply{Type: resp.TypeBulkString, Str: "va"}, nil)
	bIssued.release(&resp.Reply{Type: resp.TypeBulkString, Str: "vb"}, nil)

	if r := awaitReply(t, aDone); r == nil || r.Str != "va" {
		t.Errorf("A reply = %+v, want va", r)
	}
	if r := awaitReply(t, bDone); r == nil || r.Str != "vb" {
		t.Errorf("B reply = %+v, want vb (Join must issue queued commands)", r)
	}
	if err := <-joined; err != nil {
		t.Errorf("Join() error = %v", err)
	}
}

func TestClient_ExecuteNonBlockingWhenMailboxFull(t *testing.T) {
	// Execute holds the worker mutex only for the queue append and a
	// non-blocking wake. Saturate the smallest legal mailbox while the
	// loop is pinned inside a dispatch and verify neither Execute nor
	// Stop stalls on the worker mutex.
	d := newFakeDialer()
	d.issueGate = make(chan struct{})
	cfg := testConfig(1, 1)
	cfg.QueueCapacity = 1
	c := New(cfg, WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	aDone := make(chan *resp.Reply, 1)
	c.Execute([]string{"GET", "a"}, func(reply *resp.Reply) { aDone <- reply })
	aIssued := <-d.issued // loop is now pinned inside dispatch

	// Occupy the single mailbox slot so any blocking post would wedge.
	w := (*c.workers.Load())[0]
	if err := w.loop.Post(func() {}); err != nil {
		t.Fatalf("filler Post() error = %v", err)
	}

	bDone := make(chan *resp.Reply, 1)
	returned := make(chan struct{})
	go func() {
		c.Execute([]string{"GET", "b"}, func(reply *resp.Reply) { bDone <- reply })
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute blocked on a full mailbox")
	}

	// Unpin the loop; B must still be dispatched through the wake path.
	d.issueGate <- struct{}{}
	bIssued := <-d.issued
	d.issueGate <- struct{}{}

	aIssued.release(&resp.Reply{Type: resp.TypeBulkString, Str: "va"}, nil)
	bIssued.release(&resp.Reply{Type: resp.TypeBulkString, Str: "vb"}, nil)
	if r := awaitReply(t, aDone); r == nil || r.Str != "va" {
		t.Errorf("A reply = %+v, want va", r)
	}
	if r := awaitReply(t, bDone); r == nil || r.Str != "vb" {
		t.Errorf("B reply = %+v, want vb", r)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after mailbox saturation")
	}
}

func TestClient_PostStopExecuteFailsFast(t *testing.T) {
	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(2, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	fired := false
	c.Execute([]string{"PING"}, func(reply *resp.Reply) {
		fired = true
		if reply != nil {
			t.Errorf("reply = %+v, want nil", reply)
		}
	})
	if !fired {
		t.Error("post-Stop Execute did not fail synchronously")
	}
}

func TestClient_Restartability(t *testing.T) {
	d := newFakeDialer()
	d.handle = kvHandler()
	c := New(testConfig(2, 2), WithDialer(d))

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if r := execWait(t, c, "SET", "k", "v"); r == nil || r.Str != "OK" {
		t.Fatalf("SET reply = %+v", r)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	if r := execWait(t, c, "GET", "k"); r != nil {
		t.Fatalf("Execute between cycles = %+v, want nil reply", r)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if r := execWait(t, c, "GET", "k"); r == nil || r.Str != "v" {
		t.Fatalf("GET after restart = %+v, want v", r)
	}
	if err := c.Join(); err != nil {
		t.Fatal(err)
	}
}

func TestClient_ConcurrentStopCollapses(t *testing.T) {
	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(2, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = c.Stop()
			} else {
				errs[i] = c.Join()
			}
		}()
	}
	wg.Wait()

	// One caller wins the transition, the rest observe its completion;
	// none may error or hang.
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d error = %v", i, err)
		}
	}
	if err := c.Start(); err != nil {
		t.Errorf("Start() after collapsed stops = %v", err)
	}
	c.Stop()
}

func TestClient_ExactlyOnceUnderStopRace(t *testing.T) {
	const producers = 4
	const perProducer = 200

	d := newFakeDialer()
	d.handle = okHandler
	c := New(testConfig(3, 2), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	var callbacks atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c.Execute([]string{"PING"}, func(reply *resp.Reply) {
					callbacks.Add(1)
				})
			}
		}()
	}

	time.Sleep(time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	const total = producers * perProducer
	deadline := time.Now().Add(2 * time.Second)
	for callbacks.Load() != total {
		if time.Now().After(deadline) {
			t.Fatalf("callbacks = %d, want %d (lost or pending)", callbacks.Load(), total)
		}
		time.Sleep(time.Millisecond)
	}
	// Settle to catch double invocations.
	time.Sleep(50 * time.Millisecond)
	if got := callbacks.Load(); got != total {
		t.Errorf("callbacks = %d after settling, want exactly %d", got, total)
	}
}

func TestClient_DialFailureFailsRequests(t *testing.T) {
	d := newFakeDialer()
	d.failDial = true
	c := New(testConfig(1, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if r := execWait(t, c, "PING"); r != nil {
		t.Errorf("reply = %+v, want nil on unusable slot", r)
	}
}

func TestClient_SequentialScenario(t *testing.T) {
	// thread_num=2, conn_per_thread=1: four sequential commands must all
	// complete with real replies and read their own writes.
	d := newFakeDialer()
	d.handle = kvHandler()
	c := New(testConfig(2, 1), WithDialer(d))
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer c.Join()

	if r := execWait(t, c, "SET", "k1", "v1"); r == nil || r.Str != "OK" {
		t.Fatalf("SET k1 = %+v", r)
	}
	if r := execWait(t, c, "SET", "k2", "v2"); r == nil || r.Str != "OK" {
		t.Fatalf("SET k2 = %+v", r)
	}
	if r := execWait(t, c, "GET", "k1"); r == nil || r.Str != "v1" {
		t.Fatalf("GET k1 = %+v, want v1", r)
	}
	if r := execWait(t, c, "GET", "k2"); r == nil || r.Str != "v2" {
		t.Fatalf("GET k2 = %+v, want v2", r)
	}
}
