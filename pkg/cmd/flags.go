package cmd

import (
	"strings"

	"github.com/dukex/loyalflow/pkg/triggers/timeout"
	"github.com/dukex/loyalflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// Options configures the engine shared by the binaries.
type Options struct {
	ServiceName  string
	DatabaseURL  string
	EventBus     string
	KafkaBrokers []string
	RedisURL     string
	Tracing      bool
	MaxSteps     int
	HTTPRetries  int
}

// Flags returns the flags every binary accepts.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence",
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
			Name:    "redis-url",
			Usage:   "Redis URL for dispatch claims shared between workers",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Step limit of a run when the workflow does not set one",
			Value:   workflow.DefaultMaxSteps,
			Sources: cli.EnvVars("MAX_STEPS"),
		},
		&cli.IntFlag{
			Name:    "http-retries",
			Usage:   "Attempts of outbound HTTP requests failing with a server error",
			Value:   3,
			Sources: cli.EnvVars("HTTP_RETRIES"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the wait timeout sweeper",
			Value:   timeout.DefaultSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// OptionsFrom reads the shared flags of command.
func OptionsFrom(serviceName string, command *cli.Command) Options {
	return Options{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: splitList(command.String("kafka-brokers")),
		RedisURL:     command.String("redis-url"),
		Tracing:      command.Bool("tracing"),
		MaxSteps:     int(command.Int("max-steps")),
		HTTPRetries:  int(command.Int("http-retries")),
	}
}

func splitList(s string) []string {
	var out []string

	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
