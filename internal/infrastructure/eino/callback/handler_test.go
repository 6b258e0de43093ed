package callback

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"doggo-chat-api/internal/domain/service"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestChatModelSpanCarriesPurposeAndUsage(t *testing.T) {
	rec := recordSpans(t)
	h := newChatModelCallbackHandler()

	ctx := service.WithProvider(service.WithPurpose(context.Background(), "title"), "openai")
	ctx = h.OnStart(ctx, &einocb.RunInfo{Type: "OpenAI"}, &model.CallbackInput{Config: &model.Config{Model: "gpt-4o-mini"}})
	h.OnEnd(ctx, nil, &model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 7, CompletionTokens: 3}})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "eino.chat_model", spans[0].Name())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "title", attrs["llm.purpose"].AsString())
	assert.Equal(t, "openai", attrs["llm.provider"].AsString())
	assert.Equal(t, "gpt-4o-mini", attrs["llm.model"].AsString())
	assert.EqualValues(t, 7, attrs["llm.input_tokens"].AsInt64())
	assert.EqualValues(t, 3, attrs["llm.output_tokens"].AsInt64())
}

func TestChatModelSpanRecordsError(t *testing.T) {
	rec := recordSpans(t)
	h := newChatModelCallbackHandler()

	ctx := h.OnStart(context.Background(), nil, nil)
	h.OnError(ctx, nil, errors.New("upstream 502"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "upstream 502", spans[0].Status().Description)
}
