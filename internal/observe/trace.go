package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every span started here.
const tracerName = "github.com/apper-canvas/linguaflow-1080p-card"

// Span attribute keys shared by the chat spans.
const (
	AttrConversationID = attribute.Key("linguaflow.conversation_id")
	AttrCorrectionID   = attribute.Key("linguaflow.correction_id")
	AttrStage          = attribute.Key("linguaflow.stage")
)

type conversationKey struct{}

// Tracer returns the service [trace.Tracer] from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartConversationSpan starts a span for work on one conversation. The
// conversation id is set as [AttrConversationID] and carried in the returned
// context, so [Logger] adds it to every record logged under it.
func StartConversationSpan(ctx context.Context, name string, convID int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, conversationKey{}, convID)
	attrs = append([]attribute.KeyValue{AttrConversationID.Int(convID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// FailSpan records err on span and marks it failed at stage.
func FailSpan(span trace.Span, stage string, err error) {
	span.RecordError(err)
	span.SetAttributes(AttrStage.String(stage))
	span.SetStatus(codes.Error, stage)
}

// ConversationID returns the conversation id carried by ctx.
func ConversationID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(conversationKey{}).(int)
	return id, ok
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
// It doubles as the X-Correlation-ID header value.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id, span_id and
// conversation_id taken from ctx when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := ConversationID(ctx); ok {
		l = l.With(slog.Int("conversation_id", id))
	}
	return l
}
