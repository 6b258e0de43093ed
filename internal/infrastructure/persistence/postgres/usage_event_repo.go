// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"doggo-chat-api/internal/domain/entity"
)

type UsageEventRepository struct {
	client *Client
}

func NewUsageEventRepository(client *Client) *UsageEventRepository {
	return &UsageEventRepository{client: client}
}

func (r *UsageEventRepository) Create(ctx context.Context, event *entity.UsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

func (r *UsageEventRepository) GetTokenUsage(ctx context.Context, userID string, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.GetTokenUsage")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.UsageEvent{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, startInclusive, endExclusive).
		Select("COALESCE(SUM(input_tokens + output_tokens),0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get token usage: %w", err)
	}
	return total, nil
}
