// Package client implements an asynchronous Redis client that multiplexes
// concurrent commands over a fixed pool of persistent connections.
//
// A Client owns a configurable number of workers. Each worker runs its own
// single-goroutine reactor loop and owns a fixed set of pipelined
// connections exclusively, so command issuance needs no cross-goroutine
// synchronization. Execute hands a command to a worker chosen by
// round-robin; the worker issues it on one of its connections, again by
// round-robin, and invokes the caller's callback on the worker's loop when
// the reply arrives.
//
// Every accepted command results in exactly one callback invocation: a
// non-nil reply on success, a nil reply when the command was rejected
// (client stopped) or its connection failed. There is no other failure
// channel, so callers write a single code path for both outcomes.
//
// The package is transport-agnostic: connections come from a Dialer. The
// redix package wires the TCP dialer from pkg/conn as the default.
//
//	c := redix.New(config.Default())
//	if err := c.Start(); err != nil {
//		log.Fatal(err)
//	}
//	c.Execute([]string{"SET", "k1", "v1"}, func(reply *resp.Reply) {
//		// runs on the owning worker's loop
//	})
//	c.Join()
//
// Callbacks must not panic; the worker loop has no safe place to route a
// panicking callback and will let it crash the process.
package client
