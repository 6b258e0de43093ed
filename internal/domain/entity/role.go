// Package entity 定义领域实体
package entity

// Role 对话角色枚举
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 仅 user/assistant 可以持久化为对话轮次
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}
