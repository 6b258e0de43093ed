// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"doggo-chat-api/internal/domain/entity"
)

type AgentRepository struct {
	client *Client
}

func NewAgentRepository(client *Client) *AgentRepository {
	return &AgentRepository{client: client}
}

func (r *AgentRepository) Create(ctx context.Context, agent *entity.Agent) error {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(agent).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*entity.Agent, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var agent entity.Agent
	if err := db.First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

func (r *AgentRepository) GetByUserAndName(ctx context.Context, userID, name string) (*entity.Agent, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgentRepository.GetByUserAndName")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var agent entity.Agent
	if err := db.First(&agent, "user_id = ? AND name = ?", userID, name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get agent by name: %w", err)
	}
	return &agent, nil
}
