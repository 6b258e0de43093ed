// Package quota 用量记录与每日配额
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
)

// UsagePublisher 把用量事件投递给异步聚合方
type UsagePublisher interface {
	PublishUsage(ctx context.Context, evt *entity.UsageEvent) error
}

// CostFunc 根据结果计算美元成本
type CostFunc func(result *service.CompletionResult) float64

// UsageRecorder 追加写入用量流水，再发布到消息流供配额计数
type UsageRecorder struct {
	repo      repository.UsageEventRepository
	publisher UsagePublisher
	cost      CostFunc
	now       func() time.Time
}

var _ service.UsageRecorder = (*UsageRecorder)(nil)

// NewUsageRecorder publisher 可以为 nil
func NewUsageRecorder(repo repository.UsageEventRepository, publisher UsagePublisher, completer service.Completer) *UsageRecorder {
	return &UsageRecorder{
		repo:      repo,
		publisher: publisher,
		cost: func(result *service.CompletionResult) float64 {
			return completer.Route(result.Alias).CostUSD(result.Usage)
		},
		now: time.Now,
	}
}

// Record 失败的调用不计费，返回 (nil, nil)
func (r *UsageRecorder) Record(ctx context.Context, in service.UsageInput) (*entity.UsageEvent, error) {
	if !in.Result.Billable() {
		return nil, nil
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("usage event requires a user id")
	}
	if in.EventType == "" {
		in.EventType = entity.UsageEventChatCompletion
	}

	evt := &entity.UsageEvent{
		UserID:         in.UserID,
		AgentID:        optional(in.AgentID),
		ConversationID: optional(in.ConversationID),
		EventType:      in.EventType,
		Provider:       in.Result.Provider,
		Model:          in.Result.Model,
		InputTokens:    in.Result.Usage.InputTokens,
		OutputTokens:   in.Result.Usage.OutputTokens,
		CostUSD:        r.cost(in.Result),
		LatencyMs:      in.Result.Latency.Milliseconds(),
		CreatedAt:      r.now().UTC(),
	}

	if err := r.repo.Create(ctx, evt); err != nil {
		metrics.UsageRecordFailures.WithLabelValues("postgres").Inc()
		return nil, fmt.Errorf("failed to persist usage event: %w", err)
	}
	metrics.UsageCostUSD.WithLabelValues(evt.Model, string(evt.EventType)).Add(evt.CostUSD)

	if r.publisher != nil {
		if err := r.publisher.PublishUsage(ctx, evt); err != nil {
			// 流水已落库，配额回退到数据库汇总，不影响本次记录
			metrics.UsageRecordFailures.WithLabelValues("redis_stream").Inc()
			logger.Warn(ctx, "failed to publish usage event", "usage_event_id", evt.ID, "error", err.Error())
		}
	}
	return evt, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
