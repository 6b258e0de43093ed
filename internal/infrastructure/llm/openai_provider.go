package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

// OpenAIProvider 通过 Eino 的 OpenAI 适配器调用 Chat Completions
type OpenAIProvider struct {
	factory *EinoFactory
}

var _ service.ChatProvider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(factory *EinoFactory) *OpenAIProvider {
	return &OpenAIProvider{factory: factory}
}

func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall) (*service.ProviderResponse, error) {
	chatModel, err := p.factory.Get(ctx, ProviderOpenAI)
	if err != nil {
		return nil, err
	}

	out, err := chatModel.Generate(ctx, toEinoMessages(req), callOptions(call)...)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &ProviderError{Provider: ProviderOpenAI, Kind: service.ErrorKindMalformedResponse, Message: "empty response"}
	}

	resp := &service.ProviderResponse{Content: out.Content, Model: call.Model}
	applyResponseMeta(resp, out.ResponseMeta)
	return resp, nil
}

// Stream 流的最后一条消息可能只携带 Usage
func (p *OpenAIProvider) Stream(ctx context.Context, req *service.UnifiedRequest, call service.ProviderCall, onDelta func(string)) (*service.ProviderResponse, error) {
	chatModel, err := p.factory.Get(ctx, ProviderOpenAI)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, toEinoMessages(req), callOptions(call)...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	resp := &service.ProviderResponse{Model: call.Model}
	var sb strings.Builder
	for {
		msg, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if msg == nil {
			continue
		}
		if msg.Content != "" {
			sb.WriteString(msg.Content)
			onDelta(msg.Content)
		}
		applyResponseMeta(resp, msg.ResponseMeta)
	}
	resp.Content = sb.String()
	return resp, nil
}

func callOptions(call service.ProviderCall) []model.Option {
	return []model.Option{
		model.WithModel(call.Model),
		model.WithTemperature(float32(call.Temperature)),
		model.WithMaxTokens(call.MaxTokens),
	}
}

func applyResponseMeta(resp *service.ProviderResponse, meta *schema.ResponseMeta) {
	if meta == nil {
		return
	}
	if meta.FinishReason != "" {
		resp.StopReason = meta.FinishReason
	}
	if meta.Usage != nil {
		resp.Usage = service.TokenUsage{
			InputTokens:  meta.Usage.PromptTokens,
			OutputTokens: meta.Usage.CompletionTokens,
		}
	}
}

// toEinoMessages 含图片的轮次使用 MultiContent，图片以 data URL 内联
func toEinoMessages(req *service.UnifiedRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		role := schema.User
		if t.Role == entity.RoleAssistant {
			role = schema.Assistant
		}
		if t.ImageCount() == 0 || role != schema.User {
			msgs = append(msgs, &schema.Message{Role: role, Content: t.Text()})
			continue
		}

		parts := make([]schema.ChatMessagePart, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			switch b.Type {
			case service.BlockTypeText:
				parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: b.Text})
			case service.BlockTypeImage:
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    b.Image.DataURL(),
						Detail: schema.ImageURLDetailAuto,
					},
				})
			}
		}
		msgs = append(msgs, &schema.Message{Role: role, MultiContent: parts})
	}
	return msgs
}
