// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"doggo-chat-api/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// SetTitleIfEmpty 仅在标题为空时写入，返回是否写入
	SetTitleIfEmpty(ctx context.Context, id, title string) (bool, error)
}

type ConversationTurnRepository interface {
	Create(ctx context.Context, turn *entity.ConversationTurn) error
	// ListRecent 返回最近 limit 条轮次，按创建时间正序
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.ConversationTurn, error)
	ListByConversation(ctx context.Context, conversationID string, pagination Pagination) (*PagedResult[*entity.ConversationTurn], error)
}
