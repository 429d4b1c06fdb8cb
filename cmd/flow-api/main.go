package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/cmd"
	"github.com/cflux/flow/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "action-bus",
			Usage:   "How fired actions are dispatched (direct, eventbus)",
			Value:   "direct",
			Sources: cli.EnvVars("ACTION_BUS"),
		},
	}, cmd.RuntimeFlags()...)

	command := &cli.Command{
		Name:                  "flow-api",
		Usage:                 "Manage approval workflows, triggers and actions",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing flow API")

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			rt, err := cmd.NewRuntime(ctx, cmd.RuntimeConfigFromCommand(command), "flow-api", logger, registry)
			if err != nil {
				return fmt.Errorf("failed to initialize runtime: %w", err)
			}
			defer rt.Close(context.Background())

			var bus actionbus.Bus

			switch mode := command.String("action-bus"); mode {
			case "direct":
			case "eventbus":
				bus = actionbus.NewWatermill(rt.EventBus, logger)
			default:
				return fmt.Errorf("unsupported action bus %q", mode)
			}

			api := NewAPI(logger, rt, bus, registry)

			err = api.Seed(ctx)
			if err != nil {
				return fmt.Errorf("failed to seed system actions: %w", err)
			}

			return api.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("flow-api stopped", "error", err)
		os.Exit(1)
	}
}
