// Package context 组装发送给模型的多模态请求
package context

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
)

const (
	DefaultHistoryLimit = 20
	// DefaultInstruction 用户只发送附件时的默认问题
	DefaultInstruction = "Analyze the provided file(s)"
	// UnavailableContent 文档没有可用文本时的占位
	UnavailableContent = "(content unavailable)"
)

var builderTracer = otel.Tracer("chat.context")

// BuildInput 组装输入。History 按时间正序，Attachments 按解析器返回顺序。
type BuildInput struct {
	SystemPrompt string
	History      []*entity.ConversationTurn
	NewText      string
	Attachments  []*entity.Attachment
}

// Builder 上下文组装器。相同输入得到相同输出，图片下载失败只丢弃该图片。
type Builder struct {
	store        service.BlobStore
	historyLimit int
	fetchTimeout time.Duration
	concurrency  int
}

func NewBuilder(store service.BlobStore, historyLimit int, fetchTimeout time.Duration, concurrency int) *Builder {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Builder{
		store:        store,
		historyLimit: historyLimit,
		fetchTimeout: fetchTimeout,
		concurrency:  concurrency,
	}
}

// HistoryLimit 组装时保留的历史轮次上限
func (b *Builder) HistoryLimit() int {
	return b.historyLimit
}

// Build 顺序：历史轮次、文档上下文、图片块，新用户轮次放在最后
func (b *Builder) Build(ctx context.Context, in *BuildInput) *service.UnifiedRequest {
	ctx, span := builderTracer.Start(ctx, "chat.context.Builder.Build",
		trace.WithAttributes(
			attribute.Int("context.history", len(in.History)),
			attribute.Int("context.attachments", len(in.Attachments)),
		))
	defer span.End()

	req := &service.UnifiedRequest{System: strings.TrimSpace(in.SystemPrompt)}
	req.Turns = append(req.Turns, b.historyTurns(in.History)...)

	var docs, images []*entity.Attachment
	for _, a := range in.Attachments {
		switch {
		case a.Kind == entity.AttachmentKindImage:
			images = append(images, a)
		case a.Kind.IsDocument():
			docs = append(docs, a)
		}
	}

	// 只用去空白后的结果判断是否为空，正文原样保留
	userText := in.NewText
	if strings.TrimSpace(userText) == "" {
		userText = DefaultInstruction
	}
	if len(docs) > 0 {
		userText = "Document context:\n" + RenderDocuments(docs) + "\n\nQuestion: " + userText
	}

	blocks := []service.ContentBlock{service.TextBlock(userText)}
	blocks = append(blocks, b.imageBlocks(ctx, images)...)
	req.Turns = append(req.Turns, service.Turn{Role: entity.RoleUser, Blocks: blocks})

	span.SetAttributes(
		attribute.Int("context.turns", len(req.Turns)),
		attribute.Int("context.images", req.ImageCount()),
	)
	return req
}

// historyTurns 只保留最近 N 轮；错误轮次与空内容不进入上下文
func (b *Builder) historyTurns(history []*entity.ConversationTurn) []service.Turn {
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}
	turns := make([]service.Turn, 0, len(history))
	for _, t := range history {
		if t == nil || t.IsError || !t.Role.Valid() || strings.TrimSpace(t.Content) == "" {
			continue
		}
		turns = append(turns, service.Turn{
			Role:   t.Role,
			Blocks: []service.ContentBlock{service.TextBlock(t.Content)},
		})
	}
	return turns
}

// RenderDocuments 按给定顺序拼接文档块
func RenderDocuments(docs []*entity.Attachment) string {
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(documentIcon(d))
		sb.WriteString(" Document: ")
		sb.WriteString(d.DisplayName())
		sb.WriteString("\n")
		if p := provenance(d); p != "" {
			sb.WriteString(p)
			sb.WriteString("\n")
		}
		if d.HasText() {
			sb.WriteString(strings.TrimSpace(d.Text()))
		} else {
			sb.WriteString(UnavailableContent)
		}
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

func documentIcon(a *entity.Attachment) string {
	switch {
	case a.Metadata.Query != "" || a.Kind == entity.AttachmentKindWebSearch:
		return "🔍"
	case a.Metadata.SourceURL != "":
		return "🌐"
	default:
		return "📄"
	}
}

func provenance(a *entity.Attachment) string {
	switch {
	case a.Metadata.Query != "":
		return "Search query: " + a.Metadata.Query
	case a.Metadata.SourceURL != "":
		return "Source: " + a.Metadata.SourceURL
	default:
		return ""
	}
}

// imageBlocks 并发下载图片，结果按附件顺序排列
func (b *Builder) imageBlocks(ctx context.Context, images []*entity.Attachment) []service.ContentBlock {
	if len(images) == 0 {
		return nil
	}

	payloads := make([][]byte, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, img := range images {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, b.fetchTimeout)
			defer cancel()
			data, err := b.store.Get(fetchCtx, img.StoragePath)
			if err != nil {
				logger.Warn(ctx, "image dropped from context", "attachment_id", img.ID, "error", err.Error())
				metrics.AttachmentDegradedTotal.WithLabelValues("build", "image_download").Inc()
				return nil
			}
			payloads[i] = data
			return nil
		})
	}
	_ = g.Wait()

	blocks := make([]service.ContentBlock, 0, len(images))
	for i, img := range images {
		if len(payloads[i]) == 0 {
			continue
		}
		mediaType := img.MimeType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		blocks = append(blocks, service.ImageBlock(mediaType, payloads[i]))
	}
	return blocks
}
