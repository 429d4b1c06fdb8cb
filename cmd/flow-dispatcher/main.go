// Package main provides the dispatcher that consumes queued actions from the
// event bus and runs them against the engine.
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
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("dispatcher")

	command := &cli.Command{
		Name:  "flow-dispatcher",
		Usage: "Dispatch actions queued on the event bus",
		Flags: cmd.RuntimeFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, cmd.RuntimeConfigFromCommand(command), "flow-dispatcher", logger, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize runtime: %w", err)
			}
			defer rt.Close(context.Background())

			dispatcher := actionbus.NewDispatcher(rt.EventBus, rt.Direct(), logger)

			err = dispatcher.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Dispatcher stopped")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("flow-dispatcher stopped", "error", err)
		os.Exit(1)
	}
}
