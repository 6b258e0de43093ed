// Package redis 提供 Redis 计数器实现
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// dailyCounterTTL 覆盖跨时区查询与补偿消费
const dailyCounterTTL = 48 * time.Hour

// UsageCounter 每用户每日 token 计数，由 job-worker 维护，配额检查读取
type UsageCounter struct {
	client *Client
}

func NewUsageCounter(client *Client) *UsageCounter {
	return &UsageCounter{client: client}
}

// BuildDailyTokenKey quota:tokens:{userID}:{yyyymmdd}
func BuildDailyTokenKey(userID string, day time.Time) string {
	return fmt.Sprintf("quota:tokens:%s:%s", userID, day.UTC().Format("20060102"))
}

// AddTokens 累加 token 数，返回累加后的值
func (c *UsageCounter) AddTokens(ctx context.Context, userID string, day time.Time, tokens int64) (int64, error) {
	key := BuildDailyTokenKey(userID, day)
	ctx, span := tracer.Start(ctx, "redis.UsageCounter.AddTokens")
	span.SetAttributes(attribute.String("redis.key", key), attribute.Int64("tokens", tokens))
	defer span.End()

	pipe := c.client.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, tokens)
	pipe.Expire(ctx, key, dailyCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to add daily tokens: %w", err)
	}
	return incr.Val(), nil
}

// DailyTokens 读取当日计数，计数不存在时 ok=false
func (c *UsageCounter) DailyTokens(ctx context.Context, userID string, day time.Time) (int64, bool, error) {
	val, err := c.client.Get(ctx, BuildDailyTokenKey(userID, day))
	if err != nil {
		if IsNil(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get daily tokens: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid daily token counter %q: %w", val, err)
	}
	return n, true, nil
}
