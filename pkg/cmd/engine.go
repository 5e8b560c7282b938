package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/loyalflow/pkg/dispatch"
	"github.com/dukex/loyalflow/pkg/expression"
	"github.com/dukex/loyalflow/pkg/otelhelper"
	"github.com/dukex/loyalflow/pkg/protocol"
	"github.com/dukex/loyalflow/pkg/registry"
	"github.com/dukex/loyalflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig holds the collaborators and knobs of a processor.
type EngineConfig struct {
	Versions   protocol.VersionSource
	Messenger  protocol.Messenger
	HTTPClient protocol.HTTPClient
	Tracer     trace.Tracer
	MaxSteps   int
}

// NewProcessor registers every native node handler and builds a processor.
func NewProcessor(logger *slog.Logger, config EngineConfig) (*workflow.Processor, error) {
	reg := registry.NewRegistry(logger.With("module", "registry"))
	reg.RegisterDefaultNodes()

	err := reg.Build(protocol.Dependencies{
		Logger:     logger,
		Messenger:  config.Messenger,
		HTTPClient: config.HTTPClient,
		Versions:   config.Versions,
		Expr:       expression.NewExprEngine(),
		JQ:         expression.NewJQEngine(),
	})
	if err != nil {
		return nil, err
	}

	opts := []workflow.Option{workflow.WithLogger(logger.With("module", "processor"))}
	if config.Tracer != nil {
		opts = append(opts, workflow.WithTracer(config.Tracer))
	}

	if config.MaxSteps > 0 {
		opts = append(opts, workflow.WithMaxSteps(config.MaxSteps))
	}

	return workflow.NewProcessor(reg, config.Versions, opts...), nil
}

// NewTracer exports spans over OTLP/HTTP when enabled and records nothing
// otherwise. The exporter reads the standard OTEL_EXPORTER_OTLP_* variables.
//
//nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}

// NewClaimer shares dispatch claims through Redis when redisURL is set and
// keeps them in memory otherwise.
//
//nolint:ireturn // the implementation is selected at runtime
func NewClaimer(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (dispatch.Claimer, error) {
	if redisURL == "" {
		logger.WarnContext(ctx, "No Redis configured, dispatch claims are local to this process")

		return dispatch.NewMemoryClaimer(ttl), nil
	}

	claimer, err := dispatch.NewRedisClaimer(ctx, logger, redisURL, ttl)
	if err != nil {
		return nil, err
	}

	return claimer, nil
}
