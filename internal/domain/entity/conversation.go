// Package entity 定义领域实体
package entity

import (
	"time"
)

// Conversation 会话
type Conversation struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);index;not null"`
	AgentID   string    `json:"agent_id" gorm:"type:uuid;index;not null"`
	Title     *string   `json:"title,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func NewConversation(userID, agentID string) *Conversation {
	now := time.Now()
	return &Conversation{
		UserID:    userID,
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasTitle 是否已生成标题
func (c *Conversation) HasTitle() bool {
	return c.Title != nil && *c.Title != ""
}

// ConversationTurn 对话轮次（消息）。只保存扁平化文本，不保存多模态结构。
type ConversationTurn struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID string    `json:"conversation_id" gorm:"type:uuid;not null;index:idx_turns_conversation_created,priority:1"`
	Role           Role      `json:"role" gorm:"type:varchar(16);not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	ModelUsed      *string   `json:"model_used,omitempty" gorm:"type:varchar(64)"`
	TokensUsed     *int      `json:"tokens_used,omitempty"`
	LatencyMs      *int64    `json:"latency_ms,omitempty"`
	IsError        bool      `json:"is_error" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_turns_conversation_created,priority:2"`
}

func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

func NewUserTurn(conversationID, content string) *ConversationTurn {
	return &ConversationTurn{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// NewAssistantTurn 创建成功的助手回复轮次
func NewAssistantTurn(conversationID, content, model string, tokens int, latency time.Duration) *ConversationTurn {
	ms := latency.Milliseconds()
	return &ConversationTurn{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        content,
		ModelUsed:      &model,
		TokensUsed:     &tokens,
		LatencyMs:      &ms,
		CreatedAt:      time.Now(),
	}
}

// NewAssistantErrorTurn 提供商失败时写入的说明性助手轮次
func NewAssistantErrorTurn(conversationID, message, model string, latency time.Duration) *ConversationTurn {
	ms := latency.Milliseconds()
	return &ConversationTurn{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        message,
		ModelUsed:      &model,
		LatencyMs:      &ms,
		IsError:        true,
		CreatedAt:      time.Now(),
	}
}
