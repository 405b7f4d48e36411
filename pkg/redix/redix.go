// Package redix is the top-level entry point: it wires the dispatcher in
// pkg/client to the pipelined TCP connections in pkg/conn so callers get
// a working Redis client from a config struct alone.
package redix

import (
	"github.com/redixio/redix/pkg/client"
	"github.com/redixio/redix/pkg/config"
	"github.com/redixio/redix/pkg/conn"
)

// New creates a client backed by real TCP connections. Options are
// passed through, so WithDialer can still override the transport.
func New(cfg config.Config, opts ...client.Option) *client.Client {
	cfg = cfg.WithDefaults()
	wired := make([]client.Option, 0, len(opts)+1)
	wired = append(wired, client.WithDialer(conn.Dialer{Timeout: cfg.DialTimeout}))
	wired = append(wired, opts...)
	return client.New(cfg, wired...)
}
