package otelhelper

import (
	"github.com/dukex/loyalflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKindKey classifies the failure recorded on a span.
const ErrorKindKey = "loyalflow.error.kind"

// SetError marks span as failed and records err with its kind. A nil error
// leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	attrs = append(attrs, attribute.String(ErrorKindKey, ErrorKind(err)))

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// ErrorKind names the engine error class of err.
func ErrorKind(err error) string {
	switch {
	case models.IsDefinitionError(err):
		return "definition"
	case models.IsDepthExceeded(err):
		return "depth_exceeded"
	case models.IsConcurrencyConflict(err):
		return "conflict"
	case models.IsHandlerError(err):
		return "handler"
	default:
		return "internal"
	}
}
