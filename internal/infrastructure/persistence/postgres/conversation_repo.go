// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"doggo-chat-api/internal/domain/entity"
)

type ConversationRepository struct {
	client *Client
}

func NewConversationRepository(client *Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(conversation).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var conversation entity.Conversation
	if err := db.First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) SetTitleIfEmpty(ctx context.Context, id, title string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationRepository.SetTitleIfEmpty")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Conversation{}).
		Where("id = ? AND (title IS NULL OR title = '')", id).
		Update("title", title)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to set conversation title: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
