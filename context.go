package ember

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// ContextExtras collects the loggable identity carried by a context:
// the active span's trace and span IDs, plus every baggage member. The
// result is suitable for With or Fields.Extra.
func ContextExtras(ctx context.Context) map[string]any {
	extras := map[string]any{}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		extras["trace_id"] = sc.TraceID().String()
		extras["span_id"] = sc.SpanID().String()
	}
	for _, m := range baggage.FromContext(ctx).Members() {
		extras[m.Key()] = m.Value()
	}
	return extras
}

// WithContext returns a producer view with the context's trace identity
// and baggage bound to every record it emits.
func (e *Engine) WithContext(ctx context.Context) *Bound {
	return e.With(ContextExtras(ctx))
}
