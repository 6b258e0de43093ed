package quota

import (
	"context"
	"fmt"
	"time"

	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/pkg/logger"
)

// TokenCounter 每日 token 计数器（读 + 累加）
type TokenCounter interface {
	DailyTokenReader
	AddTokens(ctx context.Context, userID string, day time.Time, tokens int64) (int64, error)
}

// UsageAggregator 消费用量事件，维护配额检查读取的每日计数
type UsageAggregator struct {
	counter TokenCounter
	repo    repository.UsageEventRepository
}

func NewUsageAggregator(counter TokenCounter, repo repository.UsageEventRepository) *UsageAggregator {
	return &UsageAggregator{counter: counter, repo: repo}
}

// Apply 计入一条用量事件。
// 当日计数不存在时以数据库汇总为准初始化（汇总已包含本条事件），之后只做增量累加。
func (a *UsageAggregator) Apply(ctx context.Context, userID string, occurredAt time.Time, tokens int64) error {
	if userID == "" || tokens <= 0 {
		return nil
	}
	day := occurredAt.UTC()

	_, ok, err := a.counter.DailyTokens(ctx, userID, day)
	if err != nil {
		return err
	}
	if ok {
		_, err = a.counter.AddTokens(ctx, userID, day, tokens)
		return err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	total, err := a.repo.GetTokenUsage(ctx, userID, start, start.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to seed daily counter: %w", err)
	}
	if total < tokens {
		total = tokens
	}
	n, err := a.counter.AddTokens(ctx, userID, day, total)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "daily token counter seeded", "user_id", userID, "tokens", n)
	return nil
}
