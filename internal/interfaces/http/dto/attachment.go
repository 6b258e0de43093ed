package dto

import (
	"time"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/domain/entity"
)

// ScrapeRequest 抓取网页为附件
type ScrapeRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	URL            string `json:"url" binding:"required"`
}

// SearchRequest 搜索结果摘要为附件
type SearchRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Query          string `json:"query" binding:"required"`
}

// AttachmentResponse 附件信息。不返回存储路径与提取全文。
type AttachmentResponse struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversation_id"`
	MessageID      string                    `json:"message_id,omitempty"`
	Kind           string                    `json:"kind"`
	FileName       string                    `json:"file_name"`
	MimeType       string                    `json:"mime_type"`
	SizeBytes      int64                     `json:"size_bytes"`
	HasText        bool                      `json:"has_text"`
	HasThumbnail   bool                      `json:"has_thumbnail"`
	Metadata       entity.AttachmentMetadata `json:"metadata"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// SignedURLResponse 限时访问地址
type SignedURLResponse struct {
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func ToAttachmentResponse(a *entity.Attachment) *AttachmentResponse {
	if a == nil {
		return nil
	}
	out := &AttachmentResponse{
		ID:             a.ID,
		ConversationID: a.ConversationID,
		Kind:           string(a.Kind),
		FileName:       a.FileName,
		MimeType:       a.MimeType,
		SizeBytes:      a.SizeBytes,
		HasText:        a.ExtractedText != nil && *a.ExtractedText != "",
		HasThumbnail:   a.ThumbnailPath != nil,
		Metadata:       a.Metadata,
		CreatedAt:      a.CreatedAt,
	}
	if a.MessageID != nil {
		out.MessageID = *a.MessageID
	}
	return out
}

func ToAttachmentList(items []*entity.Attachment) []*AttachmentResponse {
	out := make([]*AttachmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, ToAttachmentResponse(a))
	}
	return out
}

func ToSignedURLResponse(u *attachment.SignedURLs) *SignedURLResponse {
	return &SignedURLResponse{URL: u.URL, ThumbnailURL: u.ThumbnailURL, ExpiresAt: u.ExpiresAt}
}
