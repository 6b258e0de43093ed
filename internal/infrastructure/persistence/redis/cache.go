// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// TextCache 附件提取文本缓存。附件内容不可变，因此缓存永不需要失效，删除附件时顺带清理。
type TextCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

var _ service.ExtractedTextCache = (*TextCache)(nil)

// NewTextCache 创建提取文本缓存
func NewTextCache(client *Client, ttl time.Duration) *TextCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TextCache{client: client, ttl: ttl}
}

// BuildExtractedTextKey 构建提取文本缓存键
func BuildExtractedTextKey(attachmentID string) string {
	return fmt.Sprintf("attachment:text:%s", attachmentID)
}

// GetOrLoad Read-Through，singleflight 合并同一附件的并发提取
func (c *TextCache) GetOrLoad(ctx context.Context, attachmentID string, load service.TextLoader) (string, error) {
	key := BuildExtractedTextKey(attachmentID)
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Result()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	if !IsNil(err) {
		// 缓存不可用时直接加载，不影响主流程
		span.RecordError(err)
		logger.Warn(ctx, "extracted text cache unavailable", "attachment_id", attachmentID, "error", err.Error())
		return load(ctx)
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		if val, err := c.client.rdb.Get(ctx, key).Result(); err == nil {
			return val, nil
		}

		text, err := load(ctx)
		if err != nil {
			return "", err
		}

		if err := c.client.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
			// 缓存写入失败不影响返回结果
			span.RecordError(err)
		}
		return text, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))

	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return result.(string), nil
}

// Invalidate 删除附件对应的缓存
func (c *TextCache) Invalidate(ctx context.Context, attachmentID string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Invalidate")
	defer span.End()

	return c.client.rdb.Del(ctx, BuildExtractedTextKey(attachmentID)).Err()
}
