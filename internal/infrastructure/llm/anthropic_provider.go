package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	defaultAnthropicVersion = "2023-06-01"
	anthropicMessagesPath   = "/messages"
	maxErrorBodyBytes       = 64 << 10
)

// AnthropicProvider Messages API 适配器
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
}

var _ service.ChatProvider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = defaultAnthropicVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		version:    version,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

// toAnthropicMessages 系统提示词单独传递；相邻同角色轮次合并，开头的助手轮次丢弃
func toAnthropicMessages(req *service.UnifiedRequest) []anthropicMessage {
	msgs := make([]anthropicMessage, 0, len(req.Turns))
	for _, t := range req.Turns {
		role := "user"
		if t.Role == entity.RoleAssistant {
			role = "assistant"
		}
		if len(msgs) == 0 && role == "assistant" {
			continue
		}

		content := make([]anthropicContent, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			switch b.Type {
			case service.BlockTypeText:
				if strings.TrimSpace(b.Text) == "" {
					continue
				}
				content = append(content, anthropicContent{Type: "text", Text: b.Text})
			case service.BlockTypeImage:
				content = append(content, anthropicContent{
					Type: "image",
					Source: &anthropicImageSource{
						Type:      "base64",
						MediaType: b.Image.MediaType,
						Data:      b.Image.Base64(),
					},
				})
			}
		}
		if len(content) == 0 {
			continue
		}

		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, content...)
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: role, Content: content})
	}
	return msgs
}

func (p *AnthropicProvider) newRequest(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall, stream bool) (*http.Request, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: service.ErrorKindNotConfigured, Message: "api key is not configured"}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       call.Model,
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
		System:      req.System,
		Messages:    toAnthropicMessages(req),
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+anthropicMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.version)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (p *AnthropicProvider) do(httpReq *http.Request) (*http.Response, error) {
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, httpError(resp.StatusCode, body)
	}
	return resp, nil
}

func httpError(status int, body []byte) *ProviderError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ProviderError{Provider: ProviderAnthropic, Kind: kindForStatus(status), StatusCode: status, Message: msg}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall) (*service.ProviderResponse, error) {
	httpReq, err := p.newRequest(ctx, req, call, false)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseAnthropicResponse(body)
}

func parseAnthropicResponse(body []byte) (*service.ProviderResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: service.ErrorKindMalformedResponse, Message: "response is not valid JSON"}
	}
	parsed := gjson.ParseBytes(body)
	if e := parsed.Get("error.message"); e.Exists() {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: service.ErrorKindProvider, Message: e.String()}
	}

	var sb strings.Builder
	for _, block := range parsed.Get("content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}
	return &service.ProviderResponse{
		Content:    sb.String(),
		Model:      parsed.Get("model").String(),
		StopReason: parsed.Get("stop_reason").String(),
		Usage: service.TokenUsage{
			InputTokens:  int(parsed.Get("usage.input_tokens").Int()),
			OutputTokens: int(parsed.Get("usage.output_tokens").Int()),
		},
	}, nil
}

// Stream 解析 SSE：message_start 携带输入 token，message_delta 携带输出 token
func (p *AnthropicProvider) Stream(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall, onDelta func(string)) (*service.ProviderResponse, error) {
	httpReq, err := p.newRequest(ctx, req, call, true)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &service.ProviderResponse{Model: call.Model}
	var sb strings.Builder
	stopped := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || !gjson.Valid(data) {
			continue
		}

		event := gjson.Parse(data)
		switch event.Get("type").String() {
		case "message_start":
			if m := event.Get("message.model").String(); m != "" {
				out.Model = m
			}
			out.Usage.InputTokens = int(event.Get("message.usage.input_tokens").Int())
		case "content_block_delta":
			if event.Get("delta.type").String() == "text_delta" {
				if text := event.Get("delta.text").String(); text != "" {
					sb.WriteString(text)
					onDelta(text)
				}
			}
		case "message_delta":
			if r := event.Get("delta.stop_reason").String(); r != "" {
				out.StopReason = r
			}
			if v := event.Get("usage.output_tokens"); v.Exists() {
				out.Usage.OutputTokens = int(v.Int())
			}
		case "message_stop":
			stopped = true
		case "error":
			kind := service.ErrorKindProvider
			if event.Get("error.type").String() == "overloaded_error" {
				kind = service.ErrorKindRateLimited
			}
			return nil, &ProviderError{Provider: ProviderAnthropic, Kind: kind, Message: event.Get("error.message").String()}
		}
		if stopped {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if !stopped {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: service.ErrorKindMalformedResponse, Message: "stream ended before message_stop"}
	}

	out.Content = sb.String()
	return out, nil
}
