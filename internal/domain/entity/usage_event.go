// Package entity 定义领域实体
package entity

import "time"

// UsageEventType 用量事件类型
type UsageEventType string

const (
	UsageEventChatCompletion  UsageEventType = "chat_completion"
	UsageEventTitleGeneration UsageEventType = "title_generation"
)

// UsageEvent 追加写入的用量流水，写入后不再修改
type UsageEvent struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         string         `json:"user_id" gorm:"type:varchar(64);not null;index:idx_usage_user_created,priority:1"`
	AgentID        *string        `json:"agent_id,omitempty" gorm:"type:uuid"`
	ConversationID *string        `json:"conversation_id,omitempty" gorm:"type:uuid;index"`
	EventType      UsageEventType `json:"event_type" gorm:"type:varchar(32);not null"`
	Provider       string         `json:"provider" gorm:"type:varchar(32);not null"`
	Model          string         `json:"model" gorm:"type:varchar(128);not null"`
	InputTokens    int            `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens   int            `json:"output_tokens" gorm:"not null;default:0"`
	CostUSD        float64        `json:"cost_usd" gorm:"type:numeric(12,6);not null;default:0"`
	LatencyMs      int64          `json:"latency_ms" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index:idx_usage_user_created,priority:2"`
}

func (UsageEvent) TableName() string {
	return "usage_events"
}

// TotalTokens 输入与输出 token 之和
func (e *UsageEvent) TotalTokens() int {
	return e.InputTokens + e.OutputTokens
}
