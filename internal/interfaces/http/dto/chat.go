package dto

import (
	"time"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/application/chat"
	"doggo-chat-api/internal/domain/entity"
)

// SendMessageRequest 发送消息请求。新会话需提供 agent_id，已有会话以会话绑定的助手为准。
type SendMessageRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	AgentID        string   `json:"agent_id,omitempty"`
	Text           string   `json:"text"`
	AttachmentIDs  []string `json:"attachment_ids,omitempty"`
}

// ToInput 转换为应用层输入
func (r *SendMessageRequest) ToInput(userID string) *chat.SendInput {
	return &chat.SendInput{
		UserID:         userID,
		ConversationID: r.ConversationID,
		AgentID:        r.AgentID,
		Text:           r.Text,
		AttachmentIDs:  r.AttachmentIDs,
	}
}

// MessageResponse 单条消息
type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	LatencyMs      int64     `json:"latency_ms,omitempty"`
	IsError        bool      `json:"is_error"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageResponse token 用量
type UsageResponse struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// SkippedAttachmentResponse 未能进入上下文的附件
type SkippedAttachmentResponse struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	ConversationID     string                      `json:"conversation_id"`
	UserMessage        *MessageResponse            `json:"user_message"`
	AssistantMessage   *MessageResponse            `json:"assistant_message"`
	Usage              *UsageResponse              `json:"usage,omitempty"`
	SkippedAttachments []SkippedAttachmentResponse `json:"skipped_attachments,omitempty"`
}

// StreamStartResponse 流式会话建立后的首个事件
type StreamStartResponse struct {
	ConversationID     string                      `json:"conversation_id"`
	UserMessage        *MessageResponse            `json:"user_message"`
	SkippedAttachments []SkippedAttachmentResponse `json:"skipped_attachments,omitempty"`
}

// StreamDeltaResponse 增量文本
type StreamDeltaResponse struct {
	Text string `json:"text"`
}

func ToMessageResponse(t *entity.ConversationTurn) *MessageResponse {
	if t == nil {
		return nil
	}
	out := &MessageResponse{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Role:           string(t.Role),
		Content:        t.Content,
		IsError:        t.IsError,
		CreatedAt:      t.CreatedAt,
	}
	if t.ModelUsed != nil {
		out.Model = *t.ModelUsed
	}
	if t.TokensUsed != nil {
		out.TokensUsed = *t.TokensUsed
	}
	if t.LatencyMs != nil {
		out.LatencyMs = *t.LatencyMs
	}
	return out
}

func ToMessageList(turns []*entity.ConversationTurn) []*MessageResponse {
	out := make([]*MessageResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, ToMessageResponse(t))
	}
	return out
}

func ToSkipped(skipped []attachment.SkippedAttachment) []SkippedAttachmentResponse {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]SkippedAttachmentResponse, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, SkippedAttachmentResponse{ID: s.ID, Reason: s.Reason})
	}
	return out
}

func ToSendMessageResponse(out *chat.SendOutput) *SendMessageResponse {
	resp := &SendMessageResponse{
		ConversationID:     out.Conversation.ID,
		UserMessage:        ToMessageResponse(out.UserTurn),
		AssistantMessage:   ToMessageResponse(out.AssistantTurn),
		SkippedAttachments: ToSkipped(out.Skipped),
	}
	if out.Result.Billable() {
		resp.Usage = &UsageResponse{
			InputTokens:  out.Result.Usage.InputTokens,
			OutputTokens: out.Result.Usage.OutputTokens,
		}
	}
	return resp
}
