// Package main provides the sweeper that resumes delayed workflow instances.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cflux/flow/pkg/cmd"
	"github.com/cflux/flow/pkg/log"
	"github.com/cflux/flow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

const defaultSweepInterval = time.Minute

func main() {
	logger := log.WithModule("sweeper")

	flags := append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "How often expired delays are resumed",
			Value:   defaultSweepInterval,
			Sources: cli.EnvVars("SWEEP_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "once",
			Usage:   "Run a single sweep and exit",
			Sources: cli.EnvVars("SWEEP_ONCE"),
		},
	}, cmd.RuntimeFlags()...)

	command := &cli.Command{
		Name:  "flow-sweeper",
		Usage: "Resume workflow instances whose delay step expired",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := cmd.RuntimeConfigFromCommand(command)
			cfg.DelayMode = cmd.DelayScheduled

			rt, err := cmd.NewRuntime(ctx, cfg, "flow-sweeper", logger, nil)
			if err != nil {
				return fmt.Errorf("failed to initialize runtime: %w", err)
			}
			defer rt.Close(context.Background())

			s, err := sweeper.New(rt.Engine, command.Duration("sweep-interval"), logger)
			if err != nil {
				return err
			}

			if command.Bool("once") {
				resumed := s.Run(ctx)
				logger.InfoContext(ctx, "Sweep finished", "resumed", resumed)

				return nil
			}

			err = s.Start(ctx)
			if err != nil {
				return err
			}

			<-ctx.Done()
			s.Stop()

			logger.Info("Sweeper stopped")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("flow-sweeper stopped", "error", err)
		os.Exit(1)
	}
}
