package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/metrics"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/registry"
	"github.com/cflux/flow/pkg/trigger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type RuntimeConfig struct {
	DatabaseURL    string
	EventBus       string
	KafkaBrokers   string
	Locker         string
	RedisURL       string
	ApproverGroups string
	DelayMode      string
	Notifier       string
	Tracing        bool
}

// Runtime is the engine stack shared by the flow commands.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Compiler    *graph.Compiler
	Nodes       *registry.Registry
	Engine      *engine.Engine
	Triggers    *trigger.Registry
	Tracer      trace.Tracer
	Metrics     *metrics.Metrics

	logger  *slog.Logger
	closers []io.Closer
}

// NewRuntime wires persistence, the event bus and the engine from cfg. The
// collectors are registered on reg; a nil reg disables metrics.
func NewRuntime(
	ctx context.Context,
	cfg RuntimeConfig,
	serviceName string,
	logger *slog.Logger,
	reg prometheus.Registerer,
) (*Runtime, error) {
	var delayOpts []engine.Option

	switch cfg.DelayMode {
	case "", DelayScheduled:
	case DelayImmediate:
		delayOpts = append(delayOpts, engine.WithImmediateDelays())
	default:
		return nil, fmt.Errorf("unsupported delay mode %q", cfg.DelayMode)
	}

	rt := &Runtime{logger: logger}

	if reg != nil {
		rt.Metrics = metrics.New(reg)
	}

	p, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rt.Persistence = p

	bus, err := NewEventBus(cfg.EventBus, cfg.KafkaBrokers, serviceName, logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.EventBus = bus
	rt.closers = append(rt.closers, bus)

	l, err := NewLocker(ctx, cfg.Locker, cfg.RedisURL, logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	if closer, ok := l.(io.Closer); ok {
		rt.closers = append(rt.closers, closer)
	}

	directory, err := NewApproverDirectory(cfg.ApproverGroups)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	notifier, err := NewNotifier(cfg.Notifier, bus, rt.Metrics, logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Tracer, err = NewTracer(ctx, cfg.Tracing, serviceName)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Compiler, rt.Nodes = NewCompiler(logger)
	evaluator := condition.New()

	opts := append([]engine.Option{
		engine.WithLocker(l),
		engine.WithResolver(directory),
		engine.WithNotifier(notifier),
		engine.WithPublisher(bus),
		engine.WithTracer(rt.Tracer),
		engine.WithMetrics(rt.Metrics),
	}, delayOpts...)

	rt.Engine = engine.New(p, rt.Compiler, evaluator, logger.With("component", "engine"), opts...)
	rt.Triggers = trigger.NewRegistry(p, rt.Compiler, evaluator, rt.Metrics, logger.With("component", "triggers"))

	return rt, nil
}

// Direct returns the in-process action bus over the runtime.
func (r *Runtime) Direct() *actionbus.Direct {
	return actionbus.NewDirect(r.Persistence, r.Triggers, r.Engine, r.Tracer, r.logger.With("component", "actionbus"))
}

// Close releases everything the runtime opened, persistence last.
func (r *Runtime) Close(ctx context.Context) {
	var errs []error

	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}

	if r.Persistence != nil {
		errs = append(errs, r.Persistence.Close(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
