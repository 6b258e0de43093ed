// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"doggo-chat-api/internal/domain/entity"
)

type AttachmentRepository struct {
	client *Client
}

func NewAttachmentRepository(client *Client) *AttachmentRepository {
	return &AttachmentRepository{client: client}
}

func (r *AttachmentRepository) Create(ctx context.Context, attachment *entity.Attachment) error {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(attachment).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*entity.Attachment, error) {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var attachment entity.Attachment
	if err := db.First(&attachment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &attachment, nil
}

func (r *AttachmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Attachment, error) {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.ListByConversation")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var attachments []*entity.Attachment
	if err := db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list attachments by conversation: %w", err)
	}
	return attachments, nil
}

func (r *AttachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]*entity.Attachment, error) {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.ListByMessage")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var attachments []*entity.Attachment
	if err := db.Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list attachments by message: %w", err)
	}
	return attachments, nil
}

func (r *AttachmentRepository) LinkToMessage(ctx context.Context, ids []string, messageID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.LinkToMessage")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Attachment{}).
		Where("id IN ? AND message_id IS NULL", ids).
		Update("message_id", messageID)
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to link attachments to message: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *AttachmentRepository) UpdateMetadata(ctx context.Context, id string, metadata entity.AttachmentMetadata) error {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.UpdateMetadata")
	defer span.End()

	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal attachment metadata: %w", err)
	}

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Attachment{}).
		Where("id = ?", id).
		Update("metadata", gorm.Expr("?::jsonb", string(raw))).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update attachment metadata: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.AttachmentRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Attachment{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
