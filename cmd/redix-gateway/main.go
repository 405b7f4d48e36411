// redix-gateway exposes a Redis-backed key/value HTTP API. It exists both
// as a deployable shim and as the reference wiring of the client: config
// from file plus environment, Prometheus metrics, OpenTelemetry tracing
// and graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/redixio/redix/pkg/client"
	"github.com/redixio/redix/pkg/config"
	"github.com/redixio/redix/pkg/observability/otel"
	obsprom "github.com/redixio/redix/pkg/observability/prometheus"
	"github.com/redixio/redix/pkg/redix"
	"github.com/redixio/redix/pkg/resp"
)

var errCommandFailed = errors.New("command failed")

func main() {
	var (
		listenAddr  = flag.String("listen", ":8080", "HTTP listen address")
		configPath  = flag.String("config", "", "configuration file (YAML or JSON)")
		cmdTimeout  = flag.Duration("command-timeout", 5*time.Second, "per-command reply deadline")
		withTracing = flag.Bool("tracing", false, "emit OpenTelemetry spans to stdout")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if *withTracing {
		err := otel.Initialize(ctx, otel.Config{
			ServiceName:    "redix-gateway",
			ServiceVersion: "1.0.0",
			Environment:    envOr("ENVIRONMENT", "development"),
			SampleRate:     1.0,
		})
		if err != nil {
			log.Warn("tracing disabled", "err", err)
		}
		defer otel.Shutdown(ctx)
	}

	c := redix.New(cfg,
		client.WithLogger(log),
		client.WithMetrics(obsprom.GetMetrics()),
	)
	if err := c.Start(); err != nil {
		log.Error("starting client", "err", err)
		os.Exit(1)
	}

	g := &gateway{
		client:  c,
		log:     log,
		timeout: *cmdTimeout,
		tracer:  otel.Tracer("redix-gateway"),
		metrics: fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(obsprom.DefaultRegistry, promhttp.HandlerOpts{})),
	}

	server := &fasthttp.Server{
		Handler:      g.handle,
		Name:         "redix-gateway",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", *listenAddr, "redis_host", cfg.Host, "redis_port", cfg.Port)
		if err := server.ListenAndServe(*listenAddr); err != nil {
			log.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	if err := server.Shutdown(); err != nil {
		log.Warn("closing http server", "err", err)
	}
	if err := c.Stop(); err != nil {
		log.Warn("stopping client", "err", err)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadWithEnv(path, "REDIX")
	}
	return config.ApplyEnvOverrides("REDIX", config.Default())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type gateway struct {
	client  *client.Client
	log     *slog.Logger
	timeout time.Duration
	tracer  trace.Tracer
	metrics fasthttp.RequestHandler
}

func (g *gateway) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/health":
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"status": "ok"})
	case "/metrics":
		g.metrics(ctx)
	case "/get":
		g.handleGet(ctx)
	case "/set":
		g.handleSet(ctx)
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]any{"error": "not found"})
	}
}

func (g *gateway) handleGet(ctx *fasthttp.RequestCtx) {
	key := string(ctx.QueryArgs().Peek("key"))
	if key == "" {
		writeJSON(ctx, fasthttp.StatusBadRequest, map[string]any{"error": "missing key"})
		return
	}

	reply, err := g.execute(ctx, "GET", key)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	if reply.IsNil() {
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]any{"key": key})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"key": key, "value": reply.Text()})
}

func (g *gateway) handleSet(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeJSON(ctx, fasthttp.StatusMethodNotAllowed, map[string]any{"error": "POST required"})
		return
	}

	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil || body.Key == "" {
		writeJSON(ctx, fasthttp.StatusBadRequest, map[string]any{"error": "body must be {key, value}"})
		return
	}

	reply, err := g.execute(ctx, "SET", body.Key, body.Value)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	if err := reply.Err(); err != nil {
		writeJSON(ctx, fasthttp.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"key": body.Key, "status": reply.Text()})
}

// execute bridges the callback API to a synchronous handler: it submits
// the command and waits for the reply or the deadline. A nil reply means
// the command was rejected or its connection failed.
func (g *gateway) execute(ctx *fasthttp.RequestCtx, cmd ...string) (*resp.Reply, error) {
	_, span := g.tracer.Start(ctx, "redis."+cmd[0],
		trace.WithAttributes(attribute.String("db.operation", cmd[0])))
	defer span.End()

	done := make(chan *resp.Reply, 1)
	g.client.Execute(cmd, func(reply *resp.Reply) { done <- reply })

	select {
	case reply := <-done:
		if reply == nil {
			span.RecordError(errCommandFailed)
			return nil, errCommandFailed
		}
		return reply, nil
	case <-time.After(g.timeout):
		return nil, errors.New("timed out waiting for reply")
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	_ = json.NewEncoder(ctx).Encode(v)
}
