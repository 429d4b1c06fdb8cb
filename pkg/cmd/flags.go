package cmd

import (
	"github.com/urfave/cli/v3"
)

const (
	DelayScheduled = "scheduled"
	DelayImmediate = "immediate"
)

// RuntimeFlags are the flags every command needs to build a Runtime.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://path or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "locker",
			Usage:   "Instance locker (memory, redis)",
			Value:   "memory",
			Sources: cli.EnvVars("LOCKER"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis locker",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "approver-groups",
			Usage:   "YAML file mapping approver groups to user ids",
			Sources: cli.EnvVars("APPROVER_GROUPS"),
		},
		&cli.StringFlag{
			Name:    "delay-mode",
			Usage:   "How delay steps run (scheduled, immediate)",
			Value:   DelayScheduled,
			Sources: cli.EnvVars("DELAY_MODE"),
		},
		&cli.StringFlag{
			Name:    "notifier",
			Usage:   "Notification sink (log, eventbus)",
			Value:   "log",
			Sources: cli.EnvVars("NOTIFIER"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// RuntimeConfigFromCommand reads the RuntimeFlags values.
func RuntimeConfigFromCommand(command *cli.Command) RuntimeConfig {
	return RuntimeConfig{
		DatabaseURL:    command.String("database-url"),
		EventBus:       command.String("event-bus"),
		KafkaBrokers:   command.String("kafka-brokers"),
		Locker:         command.String("locker"),
		RedisURL:       command.String("redis-url"),
		ApproverGroups: command.String("approver-groups"),
		DelayMode:      command.String("delay-mode"),
		Notifier:       command.String("notifier"),
		Tracing:        command.Bool("otel"),
	}
}
