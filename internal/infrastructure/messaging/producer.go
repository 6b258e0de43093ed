// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishUsageEvent 发布用量事件，供配额/计费消费者聚合
func (p *Producer) PublishUsageEvent(ctx context.Context, evt *UsageEventMessage) (string, error) {
	msg, err := NewMessage(evt.EventID, MessageTypeUsageRecorded, evt.UserID, evt.ConversationID, evt)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("event_type", evt.EventType)
	if reqID := logger.RequestIDFromContext(ctx); reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	return p.Publish(ctx, StreamUsageEvents, msg)
}

// PublishUsage 发布已落库的用量流水
func (p *Producer) PublishUsage(ctx context.Context, evt *entity.UsageEvent) error {
	_, err := p.PublishUsageEvent(ctx, NewUsageEventMessage(evt))
	return err
}

// NewUsageEventMessage 由用量流水构造消息
func NewUsageEventMessage(evt *entity.UsageEvent) *UsageEventMessage {
	msg := &UsageEventMessage{
		EventID:      evt.ID,
		UserID:       evt.UserID,
		EventType:    string(evt.EventType),
		Provider:     evt.Provider,
		Model:        evt.Model,
		InputTokens:  evt.InputTokens,
		OutputTokens: evt.OutputTokens,
		CostUSD:      evt.CostUSD,
		OccurredAt:   evt.CreatedAt,
	}
	if evt.AgentID != nil {
		msg.AgentID = *evt.AgentID
	}
	if evt.ConversationID != nil {
		msg.ConversationID = *evt.ConversationID
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	return msg
}

// TotalTokens 输入与输出 token 之和
func (m *UsageEventMessage) TotalTokens() int64 {
	return int64(m.InputTokens + m.OutputTokens)
}

// UsageEventMessage 用量事件消息
type UsageEventMessage struct {
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	AgentID        string    `json:"agent_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	EventType      string    `json:"event_type"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CostUSD        float64   `json:"cost_usd"`
	OccurredAt     time.Time `json:"occurred_at"`
}
