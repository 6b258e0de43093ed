package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

type fakeProvider struct {
	name   string
	resp   *service.ProviderResponse
	err    error
	deltas []string
	block  bool

	mu    sync.Mutex
	calls []service.ProviderCall
	reqs  []*service.UnifiedRequest
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) record(req *service.UnifiedRequest, call service.ProviderCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	p.reqs = append(p.reqs, req)
}

func (p *fakeProvider) Complete(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall) (*service.ProviderResponse, error) {
	p.record(req, call)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.resp, p.err
}

func (p *fakeProvider) Stream(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall, onDelta func(string)) (*service.ProviderResponse, error) {
	p.record(req, call)
	for _, d := range p.deltas {
		onDelta(d)
	}
	return p.resp, p.err
}

func newTestRouter(llmCfg *config.LLMConfig, providers ...service.ChatProvider) *Router {
	if llmCfg == nil {
		llmCfg = &config.LLMConfig{}
	}
	return NewRouter(llmCfg, &config.ChatConfig{}, providers...)
}

func helloRequest() *service.UnifiedRequest {
	return &service.UnifiedRequest{
		System: "sys",
		Turns:  []service.Turn{{Role: entity.RoleUser, Blocks: []service.ContentBlock{service.TextBlock("Hello")}}},
	}
}

func TestRouteIsStableAndFallsBack(t *testing.T) {
	r := newTestRouter(nil)

	first := r.Route("opus")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Route("opus"))
	}
	assert.Equal(t, ProviderAnthropic, first.Provider)
	assert.Equal(t, "claude-opus-4-20250514", first.ModelID)
	assert.False(t, first.Fallback)

	assert.Equal(t, "gpt-4o-mini", r.Route(" GPT-4o-mini ").ModelID)
	assert.Equal(t, "haiku", r.Route("claude-3-5-haiku-20241022").Alias)

	unknown := r.Route("unknown-id")
	assert.True(t, unknown.Fallback)
	assert.Equal(t, "sonnet", unknown.Alias)
	assert.Equal(t, "claude-sonnet-4-20250514", unknown.ModelID)
}

func TestRouteTableAppliesConfigOverrides(t *testing.T) {
	r := newTestRouter(&config.LLMConfig{
		DefaultModel: "gpt-4o",
		Models: map[string]config.ModelConfig{
			"local-text": {Provider: "OpenAI", ModelID: "llama-3-70b", SupportsVision: false, InputCostPer1K: 0.001},
		},
	})

	assert.Equal(t, "gpt-4o", r.Route("nope").Alias)
	route := r.Route("local-text")
	assert.Equal(t, ProviderOpenAI, route.Provider)
	assert.False(t, route.SupportsVision)
	assert.InDelta(t, 0.001, route.InputCostPer1K, 1e-12)
}

func TestCompleteAppliesDefaultsAndNormalizesResult(t *testing.T) {
	anthropic := &fakeProvider{name: ProviderAnthropic, resp: &service.ProviderResponse{
		Content: "Woof", Usage: service.TokenUsage{InputTokens: 12, OutputTokens: 3},
	}}
	r := newTestRouter(nil, anthropic)

	res := r.Complete(context.Background(), helloRequest(), "haiku", service.CompletionParams{})

	require.True(t, res.Success)
	assert.Equal(t, "Woof", res.Content)
	assert.Equal(t, 15, res.Usage.Total())
	assert.Equal(t, "claude-3-5-haiku-20241022", res.Model)
	assert.Equal(t, "haiku", res.Alias)
	assert.True(t, res.Billable())

	require.Len(t, anthropic.calls, 1)
	assert.InDelta(t, 1.0, anthropic.calls[0].Temperature, 1e-9)
	assert.Equal(t, 4096, anthropic.calls[0].MaxTokens)
	assert.Equal(t, "claude-3-5-haiku-20241022", anthropic.calls[0].Model)
}

func TestCompleteHonorsExplicitParams(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, resp: &service.ProviderResponse{Content: "ok"}}
	r := newTestRouter(nil, openai)

	temp, maxTokens := 0.2, 256
	res := r.Complete(context.Background(), helloRequest(), "gpt-4o", service.CompletionParams{Temperature: &temp, MaxTokens: &maxTokens})

	require.True(t, res.Success)
	assert.False(t, res.Billable())
	assert.InDelta(t, 0.2, openai.calls[0].Temperature, 1e-9)
	assert.Equal(t, 256, openai.calls[0].MaxTokens)
}

func TestCompleteSurfacesFailuresAsResults(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		want     service.ErrorKind
	}{
		{"rate limited", &fakeProvider{name: ProviderAnthropic, err: &ProviderError{Provider: ProviderAnthropic, Kind: service.ErrorKindRateLimited, StatusCode: 429}}, service.ErrorKindRateLimited},
		{"generic error", &fakeProvider{name: ProviderAnthropic, err: errors.New("boom")}, service.ErrorKindProvider},
		{"empty content", &fakeProvider{name: ProviderAnthropic, resp: &service.ProviderResponse{Usage: service.TokenUsage{InputTokens: 5}}}, service.ErrorKindMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestRouter(nil, tt.provider).Complete(context.Background(), helloRequest(), "sonnet", service.CompletionParams{})
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.ErrorKind)
			assert.False(t, res.Billable())
			assert.Len(t, tt.provider.calls, 1, "exactly one provider call, no retries")
		})
	}
}

func TestCompleteTimesOut(t *testing.T) {
	slow := &fakeProvider{name: ProviderAnthropic, block: true}
	r := NewRouter(&config.LLMConfig{Timeout: 20 * time.Millisecond}, &config.ChatConfig{}, slow)

	res := r.Complete(context.Background(), helloRequest(), "sonnet", service.CompletionParams{})
	assert.False(t, res.Success)
	assert.Equal(t, service.ErrorKindTimeout, res.ErrorKind)
}

func TestCompleteWithoutProviderIsNotConfigured(t *testing.T) {
	res := newTestRouter(nil).Complete(context.Background(), helloRequest(), "gpt-4o", service.CompletionParams{})
	assert.False(t, res.Success)
	assert.Equal(t, service.ErrorKindNotConfigured, res.ErrorKind)
}

func TestCompleteDropsImagesForTextOnlyModels(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, resp: &service.ProviderResponse{Content: "ok"}}
	r := newTestRouter(&config.LLMConfig{Models: map[string]config.ModelConfig{
		"text-only": {Provider: ProviderOpenAI, ModelID: "text-only-1"},
	}}, openai)

	req := &service.UnifiedRequest{Turns: []service.Turn{{
		Role:   entity.RoleUser,
		Blocks: []service.ContentBlock{service.TextBlock("look"), service.ImageBlock("image/jpeg", []byte{1, 2})},
	}}}
	res := r.Complete(context.Background(), req, "text-only", service.CompletionParams{})

	require.True(t, res.Success)
	assert.Equal(t, 0, openai.reqs[0].ImageCount())
	assert.Equal(t, 1, req.ImageCount(), "caller request is not mutated")
}

func TestStreamEmitsDeltasThenDone(t *testing.T) {
	p := &fakeProvider{
		name:   ProviderAnthropic,
		deltas: []string{"Wo", "of"},
		resp:   &service.ProviderResponse{Content: "Woof", Usage: service.TokenUsage{InputTokens: 4, OutputTokens: 2}},
	}
	r := newTestRouter(nil, p)

	var events []service.StreamEvent
	for ev := range r.Stream(context.Background(), helloRequest(), "sonnet", service.CompletionParams{}) {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "Wo", events[0].Delta)
	assert.Equal(t, "of", events[1].Delta)
	assert.Equal(t, service.StreamEventDone, events[2].Type)
	assert.Equal(t, "Woof", events[2].Result.Content)
	assert.Equal(t, 6, events[2].Result.Usage.Total())
}

func TestStreamErrorTerminates(t *testing.T) {
	p := &fakeProvider{name: ProviderAnthropic, deltas: []string{"partial"}, err: errors.New("connection reset")}

	var last service.StreamEvent
	for ev := range newTestRouter(nil, p).Stream(context.Background(), helloRequest(), "sonnet", service.CompletionParams{}) {
		last = ev
	}
	assert.Equal(t, service.StreamEventError, last.Type)
	assert.False(t, last.Result.Success)

	var events []service.StreamEvent
	for ev := range newTestRouter(nil).Stream(context.Background(), helloRequest(), "sonnet", service.CompletionParams{}) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, service.ErrorKindNotConfigured, events[0].Result.ErrorKind)
}
