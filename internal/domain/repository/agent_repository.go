// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"doggo-chat-api/internal/domain/entity"
)

type AgentRepository interface {
	Create(ctx context.Context, agent *entity.Agent) error
	GetByID(ctx context.Context, id string) (*entity.Agent, error)
	GetByUserAndName(ctx context.Context, userID, name string) (*entity.Agent, error)
}
