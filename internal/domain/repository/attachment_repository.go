// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"doggo-chat-api/internal/domain/entity"
)

// AttachmentRepository 附件仓储
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *entity.Attachment) error
	// GetByID 不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Attachment, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Attachment, error)
	ListByMessage(ctx context.Context, messageID string) ([]*entity.Attachment, error)
	// LinkToMessage 只回填尚未绑定消息的附件，返回实际更新的行数
	LinkToMessage(ctx context.Context, ids []string, messageID string) (int64, error)
	UpdateMetadata(ctx context.Context, id string, metadata entity.AttachmentMetadata) error
	Delete(ctx context.Context, id string) error
}
