package client

import (
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/redixio/redix/pkg/config"
	"github.com/redixio/redix/pkg/observability/prometheus"
)

// Client lifecycle states.
const (
	stateInitial int32 = iota
	stateStarted
	stateStopping
	stateJoining
)

// Client is the dispatcher callers interact with. Execute, Stop and Join
// are safe for concurrent use from any number of goroutines; Start is
// not, and must not race any other method.
type Client struct {
	cfg     config.Config
	log     *slog.Logger
	dialer  Dialer
	metrics *prometheus.Metrics

	id    string
	state atomic.Int32
	seq   atomic.Uint64

	workers atomic.Pointer[[]*worker]
	cycle   atomic.Pointer[chan struct{}]
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithDialer replaces the connection factory. The default is set by the
// caller wiring in a concrete implementation (see pkg/conn); tests inject
// fakes through this option.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithMetrics attaches Prometheus instrumentation. Without it the client
// records nothing.
func WithMetrics(m *prometheus.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client from cfg. The configuration is treated as
// immutable once Start has been called.
func New(cfg config.Config, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	c := &Client{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = noDialer{}
	}
	return c
}

// Start brings the client from its initial state to Started: one worker
// per configured thread, each worker's inbound queue and wake handle
// created before its goroutine is spawned, so Execute is accepted from
// the moment Start returns. Returns ErrAlreadyStarted in any other state.
func (c *Client) Start() error {
	if !c.state.CompareAndSwap(stateInitial, stateStarted) {
		return ErrAlreadyStarted
	}

	if err := c.cfg.Validate(); err != nil {
		c.state.Store(stateInitial)
		return err
	}

	c.id = uuid.New().String()
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	ws := make([]*worker, c.cfg.Threads)
	for i := range ws {
		ws[i] = newWorker(i, addr, c.cfg.ConnsPerThread, c.cfg.QueueCapacity, c.dialer, c.log.With("client", c.id), c.metrics)
	}

	cycle := make(chan struct{})
	c.cycle.Store(&cycle)
	c.workers.Store(&ws)

	for _, w := range ws {
		go w.run()
	}

	c.log.Info("client started",
		"client", c.id,
		"addr", addr,
		"threads", c.cfg.Threads,
		"conns_per_thread", c.cfg.ConnsPerThread)
	return nil
}

// Execute submits a command. It never blocks on I/O: the command is
// appended to the round-robin-selected worker's inbound queue under that
// worker's lock and the worker is woken. If the client is not running or
// the worker no longer accepts work, the callback fires synchronously
// with a nil reply; rejection and success share the one callback
// channel.
func (c *Client) Execute(cmd []string, cb Callback) {
	req := newRequest(cmd, cb)

	ws := c.workers.Load()
	if ws == nil || len(*ws) == 0 {
		c.metrics.Rejected()
		req.fail()
		return
	}

	idx := (c.seq.Add(1) - 1) % uint64(len(*ws))
	if !(*ws)[idx].submit(req) {
		c.metrics.Rejected()
		req.fail()
	}
}

// Stop shuts the client down: queued-but-unsent commands fail with a nil
// reply, in-flight commands complete normally, every worker goroutine is
// joined, and the client returns to its initial state so Start may be
// called again. Racing Stop/Join calls collapse to one transition; losers
// wait for the winner to finish.
func (c *Client) Stop() error {
	return c.shutdown(stateStopping, modeStop)
}

// Join is Stop except queued-but-unsent commands are issued and complete
// normally before the workers exit.
func (c *Client) Join() error {
	return c.shutdown(stateJoining, modeJoin)
}

func (c *Client) shutdown(target int32, mode shutdownMode) error {
	if !c.state.CompareAndSwap(stateStarted, target) {
		switch c.state.Load() {
		case stateStopping, stateJoining:
			// Another goroutine owns the transition; observe completion.
			if ch := c.cycle.Load(); ch != nil {
				<-*ch
			}
			return nil
		default:
			return ErrNotStarted
		}
	}

	ws := c.workers.Load()
	for _, w := range *ws {
		w.beginShutdown(mode)
	}
	for _, w := range *ws {
		<-w.done
	}

	c.workers.Store(nil)
	cycle := c.cycle.Load()
	c.state.Store(stateInitial)
	close(*cycle)

	c.log.Info("client stopped", "client", c.id, "join", mode == modeJoin)
	return nil
}

// noDialer rejects every slot, turning all commands into nil-reply
// callbacks. It stands in when no real dialer was wired, which keeps the
// failure mode identical to a dead server instead of a nil dereference.
type noDialer struct{}

func (noDialer) Dial(string, Executor) (Conn, error) {
	return nil, ErrNoDialer
}
