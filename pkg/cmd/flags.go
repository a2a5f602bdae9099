package cmd

import (
	"time"

	cli "github.com/urfave/cli/v3"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
	DefaultSecretsTTL        = 5 * time.Minute
	DefaultBindingTTL        = 10 * time.Minute
)

// CommonFlags are shared by every flowrun binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Workflow and project storage: postgres:// URL or a directory",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "stats-database-url",
			Usage:   "PostgreSQL URL for execution logs (logs to stdout when empty)",
			Sources: cli.EnvVars("STATS_DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   EventBusGoChannel,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for connection bindings and rate limits (in-memory when empty)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS URL for the progress relay (in-memory when empty)",
			Sources: cli.EnvVars("NATS_URL"),
		},
		&cli.StringFlag{
			Name:    "secrets-mongo-uri",
			Usage:   "MongoDB URI of the project secrets store",
			Sources: cli.EnvVars("SECRETS_MONGO_URI"),
		},
		&cli.DurationFlag{
			Name:    "secrets-ttl",
			Usage:   "How long resolved secrets are cached",
			Value:   DefaultSecretsTTL,
			Sources: cli.EnvVars("SECRETS_TTL"),
		},
		&cli.StringFlag{
			Name:    "platform-mongo-uri",
			Usage:   "MongoDB URI used by database nodes of projects without their own database",
			Sources: cli.EnvVars("PLATFORM_MONGO_URI"),
		},
		&cli.DurationFlag{
			Name:    "script-timeout",
			Usage:   "Wall-clock limit of logic node code",
			Value:   2 * time.Second,
			Sources: cli.EnvVars("SCRIPT_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "sentry-dsn",
			Usage:   "Sentry DSN for error reporting",
			Sources: cli.EnvVars("SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment reported to Sentry",
			Value:   "development",
			Sources: cli.EnvVars("ENVIRONMENT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// OrchestratorFlags configure the connection handshake.
func OrchestratorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.DurationFlag{
			Name:    "connection-timeout",
			Usage:   "How long a real-time execution waits for its client",
			Value:   DefaultConnectionTimeout,
			Sources: cli.EnvVars("CONNECTION_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often the binding store is polled while waiting",
			Value:   DefaultPollInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "binding-ttl",
			Usage:   "Lifetime of a connection binding",
			Value:   DefaultBindingTTL,
			Sources: cli.EnvVars("BINDING_TTL"),
		},
	}
}

// RegistryConfigFrom reads the registry flags of command.
func RegistryConfigFrom(command *cli.Command) RegistryConfig {
	return RegistryConfig{
		SecretsMongoURI:      command.String("secrets-mongo-uri"),
		SecretsTTL:           command.Duration("secrets-ttl"),
		PlatformDatastoreURI: command.String("platform-mongo-uri"),
		ScriptTimeout:        command.Duration("script-timeout"),
	}
}
