// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cflux/flow/pkg/approvers"
	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/locker"
	"github.com/cflux/flow/pkg/metrics"
	"github.com/cflux/flow/pkg/notification"
	"github.com/cflux/flow/pkg/otelhelper"
	"github.com/cflux/flow/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// NewCompiler builds the graph compiler over the built-in node types.
func NewCompiler(logger *slog.Logger) (*graph.Compiler, *registry.Registry) {
	reg := registry.NewDefaultRegistry(logger)

	return graph.NewCompiler(logger, reg), reg
}

// NewLocker returns the instance locker: memory for a single process, redis
// when several processes mutate the same store.
func NewLocker(ctx context.Context, kind, redisURL string, logger *slog.Logger) (locker.Locker, error) {
	switch kind {
	case "", "memory":
		return locker.NewMemory(), nil
	case "redis":
		l, err := locker.NewRedisFromURL(ctx, redisURL, logger)
		if err != nil {
			return nil, err
		}

		return l, nil
	default:
		return nil, fmt.Errorf("unsupported locker %q", kind)
	}
}

// NewApproverDirectory loads approver groups from a YAML file. Without a file
// approver ids are used as given.
func NewApproverDirectory(path string) (*approvers.Directory, error) {
	if path == "" {
		return approvers.NewDirectory(), nil
	}

	return approvers.LoadDirectory(path)
}

// NewNotifier returns the notification sink wrapped in a circuit breaker. The
// "eventbus" kind hands messages to external delivery through the bus; "log"
// only writes them to the log.
func NewNotifier(kind string, bus eventbus.EventPublisher, m *metrics.Metrics, logger *slog.Logger) (notification.Notifier, error) {
	var sink notification.Notifier

	switch kind {
	case "", "log":
		sink = notification.NewLog(logger)
	case "eventbus":
		if bus == nil {
			return nil, fmt.Errorf("notifier %q needs an event bus", kind)
		}

		sink = notification.NewEventBus(bus)
	default:
		return nil, fmt.Errorf("unsupported notifier %q", kind)
	}

	return notification.NewBreaker(sink, notification.DefaultBreakerSettings(), logger, m), nil
}

// NewTracer exports spans over OTLP/HTTP when enabled and records nothing otherwise.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
