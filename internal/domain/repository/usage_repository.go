// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"doggo-chat-api/internal/domain/entity"
)

type UsageEventRepository interface {
	Create(ctx context.Context, event *entity.UsageEvent) error
	GetTokenUsage(ctx context.Context, userID string, startInclusive, endExclusive time.Time) (int64, error)
}
