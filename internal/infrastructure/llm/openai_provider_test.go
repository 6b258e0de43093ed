package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

func TestToEinoMessagesInlinesImages(t *testing.T) {
	req := &service.UnifiedRequest{
		System: "sys",
		Turns: []service.Turn{
			{Role: entity.RoleUser, Blocks: []service.ContentBlock{service.TextBlock("hi")}},
			{Role: entity.RoleAssistant, Blocks: []service.ContentBlock{service.TextBlock("hello")}},
			{Role: entity.RoleUser, Blocks: []service.ContentBlock{service.TextBlock("see"), service.ImageBlock("image/png", []byte("png"))}},
		},
	}

	msgs := toEinoMessages(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)

	parts := msgs[3].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, schema.ChatMessagePartTypeText, parts[0].Type)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, parts[1].Type)
	assert.Equal(t, "data:image/png;base64,cG5n", parts[1].ImageURL.URL)
}

func TestOpenAIProviderComplete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Bark"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`)
	}))
	defer srv.Close()

	factory := NewEinoFactory(&config.LLMConfig{Providers: map[string]config.ProviderConfig{
		ProviderOpenAI: {APIKey: "sk-test", BaseURL: srv.URL},
	}})
	p := NewOpenAIProvider(factory)

	resp, err := p.Complete(context.Background(), helloRequest(), service.ProviderCall{Model: "gpt-4o-mini", Temperature: 0.5, MaxTokens: 128})
	require.NoError(t, err)
	assert.Equal(t, "Bark", resp.Content)
	assert.Equal(t, service.TokenUsage{InputTokens: 9, OutputTokens: 2}, resp.Usage)

	sent := gjson.ParseBytes(body)
	assert.Equal(t, "gpt-4o-mini", sent.Get("model").String())
	assert.Equal(t, int64(128), sent.Get("max_tokens").Int())
	assert.Equal(t, "system", sent.Get("messages.0.role").String())
}

func TestOpenAIProviderNotConfigured(t *testing.T) {
	p := NewOpenAIProvider(NewEinoFactory(&config.LLMConfig{}))
	_, err := p.Complete(context.Background(), helloRequest(), service.ProviderCall{Model: "gpt-4o"})
	assert.Equal(t, service.ErrorKindNotConfigured, classifyError(err))
}
