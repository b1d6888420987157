package ember

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
}

func TestContextExtrasFromSpanContext(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))

	extras := ContextExtras(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", extras["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", extras["span_id"])
}

func TestContextExtrasFromBaggage(t *testing.T) {
	bag, err := baggage.Parse("tenant=acme,request_kind=import")
	require.NoError(t, err)
	ctx := baggage.ContextWithBaggage(context.Background(), bag)

	extras := ContextExtras(ctx)
	assert.Equal(t, "acme", extras["tenant"])
	assert.Equal(t, "import", extras["request_kind"])
	_, hasTrace := extras["trace_id"]
	assert.False(t, hasTrace, "no span context, no trace id")
}

func TestContextExtrasEmptyContext(t *testing.T) {
	assert.Empty(t, ContextExtras(context.Background()))
}

func TestWithContextBindsTraceIdentity(t *testing.T) {
	eng := New()
	defer eng.Shutdown()

	var lines []string
	_, err := eng.AddCallable(func(line string) { lines = append(lines, line) },
		Format("{extra[trace_id]} {message}"))
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), testSpanContext(t))
	eng.WithContext(ctx).Info("traced")

	require.Len(t, lines, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736 traced", lines[0])
}
