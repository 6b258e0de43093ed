// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// AttachmentKind 附件类型
type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindPDF   AttachmentKind = "pdf"
	AttachmentKindText  AttachmentKind = "text"
	// AttachmentKindWebSearch 历史数据中的搜索摘要类型，新数据统一写为 text
	AttachmentKindWebSearch AttachmentKind = "web_search"
)

// AttachmentSource 附件来源
type AttachmentSource string

const (
	AttachmentSourceUpload AttachmentSource = "upload"
	AttachmentSourceScrape AttachmentSource = "scrape"
	AttachmentSourceSearch AttachmentSource = "search"
)

// IsDocument 是否作为文档文本进入上下文
func (k AttachmentKind) IsDocument() bool {
	switch k {
	case AttachmentKindPDF, AttachmentKindText, AttachmentKindWebSearch:
		return true
	default:
		return false
	}
}

// SupportsLazyExtraction 是否可以在读取时补做文本提取
func (k AttachmentKind) SupportsLazyExtraction() bool {
	return k.IsDocument()
}

// AttachmentMetadata 附件元数据（jsonb）
type AttachmentMetadata struct {
	Source          AttachmentSource `json:"source,omitempty"`
	Width           int              `json:"width,omitempty"`
	Height          int              `json:"height,omitempty"`
	OriginalWidth   int              `json:"original_width,omitempty"`
	OriginalHeight  int              `json:"original_height,omitempty"`
	PageCount       int              `json:"page_count,omitempty"`
	SourceURL       string           `json:"source_url,omitempty"`
	Query           string           `json:"query,omitempty"`
	Title           string           `json:"title,omitempty"`
	ExtractionError string           `json:"extraction_error,omitempty"`
}

// Attachment 归一化后的附件。二进制内容上传后不可变，只允许修改 MessageID 与 Metadata。
type Attachment struct {
	ID             string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         string             `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ConversationID string             `json:"conversation_id" gorm:"type:uuid;index;not null"`
	MessageID      *string            `json:"message_id,omitempty" gorm:"type:uuid;index"`
	Kind           AttachmentKind     `json:"kind" gorm:"type:varchar(16);not null"`
	FileName       string             `json:"file_name" gorm:"type:varchar(255);not null"`
	MimeType       string             `json:"mime_type" gorm:"type:varchar(128);not null"`
	SizeBytes      int64              `json:"size_bytes" gorm:"not null;default:0"`
	StoragePath    string             `json:"storage_path" gorm:"type:varchar(512);not null"`
	ExtractedText  *string            `json:"extracted_text,omitempty" gorm:"type:text"`
	ThumbnailPath  *string            `json:"thumbnail_path,omitempty" gorm:"type:varchar(512)"`
	Metadata       AttachmentMetadata `json:"metadata" gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time          `json:"created_at" gorm:"autoCreateTime"`
}

func (Attachment) TableName() string {
	return "attachments"
}

// DisplayName 上下文中展示的名称
func (a *Attachment) DisplayName() string {
	if t := strings.TrimSpace(a.Metadata.Title); t != "" {
		return t
	}
	return a.FileName
}

// Text 返回已提取文本，未提取时为空串
func (a *Attachment) Text() string {
	if a.ExtractedText == nil {
		return ""
	}
	return *a.ExtractedText
}

// HasText 是否已有非空提取文本
func (a *Attachment) HasText() bool {
	return strings.TrimSpace(a.Text()) != ""
}

// Validate 校验类型与字段的约束：缩略图仅图片可有，提取文本仅文档可有
func (a *Attachment) Validate() error {
	switch a.Kind {
	case AttachmentKindImage:
		if a.ExtractedText != nil {
			return fmt.Errorf("image attachment cannot carry extracted text")
		}
	case AttachmentKindPDF, AttachmentKindText, AttachmentKindWebSearch:
		if a.ThumbnailPath != nil {
			return fmt.Errorf("%s attachment cannot carry a thumbnail", a.Kind)
		}
	default:
		return fmt.Errorf("unknown attachment kind %q", a.Kind)
	}
	if a.StoragePath == "" {
		return fmt.Errorf("attachment storage path is required")
	}
	return nil
}
