package quota

import (
	"context"
	"fmt"
	"time"

	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
	"doggo-chat-api/pkg/logger"
)

// DailyTokenReader 读取缓存中的当日 token 计数
type DailyTokenReader interface {
	DailyTokens(ctx context.Context, userID string, day time.Time) (int64, bool, error)
}

// ExceededError 用户当日 token 配额已耗尽
type ExceededError struct {
	UserID string
	Max    int64
	Used   int64
}

func (e ExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: user=%s used=%d max=%d", e.UserID, e.Used, e.Max)
}

// DailyTokenChecker 按 UTC 自然日检查 token 配额，limit<=0 表示不限制
type DailyTokenChecker struct {
	counter DailyTokenReader
	repo    repository.UsageEventRepository
	limit   int64
	now     func() time.Time
}

var _ service.QuotaChecker = (*DailyTokenChecker)(nil)

func NewDailyTokenChecker(counter DailyTokenReader, repo repository.UsageEventRepository, limit int64) *DailyTokenChecker {
	return &DailyTokenChecker{
		counter: counter,
		repo:    repo,
		limit:   limit,
		now:     time.Now,
	}
}

// Used 当日已用 token：优先读计数器，缺失或出错时回退到数据库汇总
func (c *DailyTokenChecker) Used(ctx context.Context, userID string) (int64, error) {
	now := c.now().UTC()
	if c.counter != nil {
		n, ok, err := c.counter.DailyTokens(ctx, userID, now)
		switch {
		case err != nil:
			logger.Warn(ctx, "daily token counter unavailable, falling back to database", "error", err.Error())
		case ok:
			return n, nil
		}
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return c.repo.GetTokenUsage(ctx, userID, start, start.Add(24*time.Hour))
}

func (c *DailyTokenChecker) Check(ctx context.Context, userID string) error {
	if c.limit <= 0 {
		return nil
	}
	used, err := c.Used(ctx, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to read token usage")
	}
	if used >= c.limit {
		return apperrors.ErrQuotaExceeded.
			WithDetail(fmt.Sprintf("used %d of %d tokens today", used, c.limit)).
			WithError(ExceededError{UserID: userID, Max: c.limit, Used: used})
	}
	return nil
}
