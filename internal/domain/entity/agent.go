// Package entity 定义领域实体
package entity

import "time"

// Agent 用户配置的智能体：系统提示词 + 抽象模型标识 + 生成参数
type Agent struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       string    `json:"user_id" gorm:"type:varchar(64);index;not null"`
	Name         string    `json:"name" gorm:"type:varchar(128);not null"`
	SystemPrompt string    `json:"system_prompt" gorm:"type:text;not null;default:''"`
	Model        string    `json:"model" gorm:"type:varchar(64);not null"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Agent) TableName() string {
	return "agents"
}

func NewAgent(userID, name, systemPrompt, model string) *Agent {
	now := time.Now()
	return &Agent{
		UserID:       userID,
		Name:         name,
		SystemPrompt: systemPrompt,
		Model:        model,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
