package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

func anthropicCall() service.ProviderCall {
	return service.ProviderCall{Model: "claude-sonnet-4-20250514", Temperature: 1, MaxTokens: 4096}
}

func TestAnthropicCompleteTranslatesRequest(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"Good "},{"type":"text","text":"dog"}],
			"stop_reason":"end_turn","usage":{"input_tokens":21,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	req := &service.UnifiedRequest{
		System: "You are a dog.",
		Turns: []service.Turn{
			{Role: entity.RoleAssistant, Blocks: []service.ContentBlock{service.TextBlock("leading assistant turn")}},
			{Role: entity.RoleUser, Blocks: []service.ContentBlock{service.TextBlock("first")}},
			{Role: entity.RoleUser, Blocks: []service.ContentBlock{service.TextBlock("second"), service.ImageBlock("image/jpeg", []byte("jpg"))}},
		},
	}

	resp, err := p.Complete(context.Background(), req, anthropicCall())
	require.NoError(t, err)
	assert.Equal(t, "Good dog", resp.Content)
	assert.Equal(t, service.TokenUsage{InputTokens: 21, OutputTokens: 4}, resp.Usage)
	assert.Equal(t, "end_turn", resp.StopReason)

	sent := gjson.ParseBytes(body)
	assert.Equal(t, "You are a dog.", sent.Get("system").String())
	assert.Equal(t, int64(4096), sent.Get("max_tokens").Int())
	msgs := sent.Get("messages").Array()
	require.Len(t, msgs, 1, "leading assistant dropped and user turns merged")
	assert.Equal(t, "user", msgs[0].Get("role").String())
	content := msgs[0].Get("content").Array()
	require.Len(t, content, 3)
	assert.Equal(t, "image", content[2].Get("type").String())
	assert.Equal(t, "base64", content[2].Get("source.type").String())
	assert.Equal(t, "anBn", content[2].Get("source.data").String())
}

func TestAnthropicCompleteMapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), helloRequest(), anthropicCall())

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.ErrorKindRateLimited, pe.Kind)
	assert.Equal(t, 429, pe.StatusCode)
	assert.Equal(t, "slow down", pe.Message)
}

func TestAnthropicWithoutKeyIsNotConfigured(t *testing.T) {
	_, err := NewAnthropicProvider(config.ProviderConfig{}).Complete(context.Background(), helloRequest(), anthropicCall())
	assert.Equal(t, service.ErrorKindNotConfigured, classifyError(err))
}

func TestAnthropicStreamParsesSSE(t *testing.T) {
	events := []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":30,"output_tokens":1}}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Wo"}}`,
		``,
		`event: ping`,
		`data: {"type":"ping"}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"of"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(b, "stream").Bool())
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, strings.Join(events, "\n"))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	var deltas []string
	resp, err := p.Stream(context.Background(), helloRequest(), anthropicCall(), func(d string) { deltas = append(deltas, d) })

	require.NoError(t, err)
	assert.Equal(t, []string{"Wo", "of"}, deltas)
	assert.Equal(t, "Woof", resp.Content)
	assert.Equal(t, service.TokenUsage{InputTokens: 30, OutputTokens: 7}, resp.Usage)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Stream(context.Background(), helloRequest(), anthropicCall(), func(string) {})
	assert.Equal(t, service.ErrorKindRateLimited, classifyError(err))
}

func TestAnthropicStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"half\"}}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Stream(context.Background(), helloRequest(), anthropicCall(), func(string) {})
	assert.Equal(t, service.ErrorKindMalformedResponse, classifyError(err))
}
