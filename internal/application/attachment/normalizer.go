// Package attachment 附件归一化、解析与管理
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
	"doggo-chat-api/pkg/tracer"
)

var attachmentTracer = otel.Tracer("attachment")

// 允许上传的图片类型
var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Owner 附件归属
type Owner struct {
	UserID         string
	ConversationID string
}

// UploadInput 上传文件
type UploadInput struct {
	Owner
	FileName     string
	DeclaredMIME string
	Data         []byte
}

// Normalizer 把上传文件、抓取页面和搜索结果统一转成 Attachment 记录
type Normalizer struct {
	repo  repository.AttachmentRepository
	store service.BlobStore
	cfg   config.AttachmentsConfig
	now   func() time.Time
}

// NewNormalizer 创建归一化器，未配置的参数使用默认值
func NewNormalizer(repo repository.AttachmentRepository, store service.BlobStore, cfg *config.AttachmentsConfig) *Normalizer {
	c := *cfg
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 << 20
	}
	if c.MaxImageDimension <= 0 {
		c.MaxImageDimension = 1920
	}
	if c.ImageQuality <= 0 {
		c.ImageQuality = 85
	}
	if c.ThumbnailSize <= 0 {
		c.ThumbnailSize = 200
	}
	if c.ThumbnailQuality <= 0 {
		c.ThumbnailQuality = 80
	}
	return &Normalizer{repo: repo, store: store, cfg: c, now: time.Now}
}

// Upload 处理上传文件：图片压缩并生成缩略图，PDF 提取文本，纯文本原样保存
func (n *Normalizer) Upload(ctx context.Context, in *UploadInput) (*entity.Attachment, error) {
	ctx, span := attachmentTracer.Start(ctx, "attachment.Normalizer.Upload",
		trace.WithAttributes(
			attribute.String("attachment.declared_mime", in.DeclaredMIME),
			attribute.Int("attachment.size", len(in.Data)),
		))
	defer span.End()

	if len(in.Data) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("file is empty")
	}
	if int64(len(in.Data)) > n.cfg.MaxFileSize {
		metrics.AttachmentNormalizeTotal.WithLabelValues("unknown", "too_large").Inc()
		return nil, apperrors.ErrFileTooLarge.WithDetail(fmt.Sprintf("max %d bytes", n.cfg.MaxFileSize))
	}

	detected := mimetype.Detect(in.Data)
	if err := checkDeclaredMIME(in.DeclaredMIME, detected); err != nil {
		metrics.AttachmentNormalizeTotal.WithLabelValues("unknown", "mime_mismatch").Inc()
		return nil, err
	}
	var (
		att *entity.Attachment
		err error
	)
	switch {
	case detected.Is("application/pdf"):
		att, err = n.normalizePDF(ctx, in)
	case isAllowedImage(detected):
		att, err = n.normalizeImage(ctx, in, detected.String())
	case detected.Is("text/plain"):
		att, err = n.normalizeText(ctx, in)
	default:
		metrics.AttachmentNormalizeTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, apperrors.ErrUnsupportedMediaType.WithDetail(detected.String())
	}
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	return att, nil
}

func isAllowedImage(m *mimetype.MIME) bool {
	for _, t := range allowedImageTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

// checkDeclaredMIME 声明的类型与内容嗅探结果必须一致；未声明或 octet-stream 时只看内容。
// 图片与 PDF 严格比对，文本类声明只要求内容不是图片或 PDF。
func checkDeclaredMIME(declared string, detected *mimetype.MIME) error {
	base, _, err := mime.ParseMediaType(declared)
	if err != nil || base == "" || base == "application/octet-stream" {
		return nil
	}
	switch base {
	case "image/jpg", "image/pjpeg":
		base = "image/jpeg"
	}

	mismatch := apperrors.ErrUnsupportedMediaType.WithDetail(
		fmt.Sprintf("declared %s but content is %s", base, detected.String()))
	switch {
	case strings.HasPrefix(base, "image/"):
		if !isAllowedImage(detected) || !detected.Is(base) {
			return mismatch
		}
	case base == "application/pdf":
		if !detected.Is("application/pdf") {
			return mismatch
		}
	case isAllowedImage(detected), detected.Is("application/pdf"):
		return mismatch
	}
	return nil
}

// normalizeImage 转 JPEG，最长边不超过上限且不放大；缩略图写入失败不影响附件创建
func (n *Normalizer) normalizeImage(ctx context.Context, in *UploadInput, mimeType string) (*entity.Attachment, error) {
	src, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		metrics.AttachmentNormalizeTotal.WithLabelValues(string(entity.AttachmentKindImage), "decode_failed").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeAttachmentProcessError, "failed to decode image")
	}

	origW, origH := src.Bounds().Dx(), src.Bounds().Dy()
	resized := fitWithin(src, n.cfg.MaxImageDimension)
	flat := flatten(resized)

	var full bytes.Buffer
	if err := imaging.Encode(&full, flat, imaging.JPEG, imaging.JPEGQuality(n.cfg.ImageQuality)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAttachmentProcessError, "failed to encode image")
	}

	safe := replaceExt(SanitizeFileName(in.FileName, n.now()), ".jpg")
	fullPath, err := storagePath(in.Owner, CategoryImages, safe)
	if err != nil {
		return nil, err
	}
	if err := n.store.Put(ctx, fullPath, full.Bytes(), "image/jpeg"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to store image")
	}
	written := []string{fullPath}

	var thumbPath *string
	thumb := imaging.Fill(flat, n.cfg.ThumbnailSize, n.cfg.ThumbnailSize, imaging.Center, imaging.Lanczos)
	var tb bytes.Buffer
	if err := imaging.Encode(&tb, thumb, imaging.JPEG, imaging.JPEGQuality(n.cfg.ThumbnailQuality)); err != nil {
		logger.Warn(ctx, "thumbnail encode failed", "error", err.Error())
		metrics.AttachmentDegradedTotal.WithLabelValues("normalize", "thumbnail_encode").Inc()
	} else {
		// 与原图路径只差分类目录，原图已通过校验
		p, _ := storagePath(in.Owner, CategoryThumbnails, safe)
		if err := n.store.Put(ctx, p, tb.Bytes(), "image/jpeg"); err != nil {
			logger.Warn(ctx, "thumbnail upload failed", "path", p, "error", err.Error())
			metrics.AttachmentDegradedTotal.WithLabelValues("normalize", "thumbnail_upload").Inc()
		} else {
			thumbPath = &p
			written = append(written, p)
		}
	}

	att := &entity.Attachment{
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		Kind:           entity.AttachmentKindImage,
		FileName:       displayFileName(in.FileName, safe),
		MimeType:       "image/jpeg",
		SizeBytes:      int64(full.Len()),
		StoragePath:    fullPath,
		ThumbnailPath:  thumbPath,
		Metadata: entity.AttachmentMetadata{
			Source:         entity.AttachmentSourceUpload,
			Width:          flat.Bounds().Dx(),
			Height:         flat.Bounds().Dy(),
			OriginalWidth:  origW,
			OriginalHeight: origH,
		},
	}
	logger.Debug(ctx, "image normalized", "source_mime", mimeType, "width", att.Metadata.Width, "height", att.Metadata.Height)
	return n.persist(ctx, att, written)
}

// fitWithin 等比缩小到 limit×limit 以内，小图原样返回
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Lanczos)
}

// flatten 透明像素铺白底，JPEG 不支持 alpha
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// normalizePDF 提取失败不阻止附件创建，extracted_text 保持为空
func (n *Normalizer) normalizePDF(ctx context.Context, in *UploadInput) (*entity.Attachment, error) {
	safe := SanitizeFileName(in.FileName, n.now())
	if !strings.HasSuffix(strings.ToLower(safe), ".pdf") {
		safe += ".pdf"
	}
	p, err := storagePath(in.Owner, CategoryDocuments, safe)
	if err != nil {
		return nil, err
	}
	if err := n.store.Put(ctx, p, in.Data, "application/pdf"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to store document")
	}

	att := &entity.Attachment{
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		Kind:           entity.AttachmentKindPDF,
		FileName:       displayFileName(in.FileName, safe),
		MimeType:       "application/pdf",
		SizeBytes:      int64(len(in.Data)),
		StoragePath:    p,
		Metadata:       entity.AttachmentMetadata{Source: entity.AttachmentSourceUpload},
	}

	text, pages, err := ExtractPDFText(in.Data)
	switch {
	case err != nil:
		logger.Warn(ctx, "pdf text extraction failed", "file", in.FileName, "error", err.Error())
		metrics.AttachmentDegradedTotal.WithLabelValues("normalize", "pdf_extract").Inc()
		att.Metadata.ExtractionError = err.Error()
	default:
		att.Metadata.PageCount = pages
		if text = n.clip(text); strings.TrimSpace(text) != "" {
			att.ExtractedText = &text
		}
	}
	return n.persist(ctx, att, []string{p})
}

func (n *Normalizer) normalizeText(ctx context.Context, in *UploadInput) (*entity.Attachment, error) {
	if !utf8.Valid(in.Data) {
		return nil, apperrors.ErrUnsupportedMediaType.WithDetail("text file is not valid UTF-8")
	}
	mimeType := "text/plain"
	if strings.HasPrefix(in.DeclaredMIME, "text/markdown") {
		mimeType = "text/markdown"
	}
	text := n.clip(string(in.Data))
	return n.storeText(ctx, in.Owner, displayFileName(in.FileName, "file.txt"), in.FileName, mimeType, text,
		entity.AttachmentMetadata{Source: entity.AttachmentSourceUpload})
}

// FromScrape 抓取页面保存为纯文本附件，保留来源 URL
func (n *Normalizer) FromScrape(ctx context.Context, owner Owner, page *service.ScrapedPage) (*entity.Attachment, error) {
	ctx, span := attachmentTracer.Start(ctx, "attachment.Normalizer.FromScrape")
	defer span.End()

	text := n.clip(strings.TrimSpace(page.Markdown))
	if text == "" {
		return nil, apperrors.New(apperrors.CodeAttachmentProcessError, "scraped page has no text").WithDetail(page.URL)
	}
	name := strings.TrimSpace(page.Title)
	if name == "" {
		name = page.URL
	}
	att, err := n.storeText(ctx, owner, name, name+".md", "text/markdown", text, entity.AttachmentMetadata{
		Source:    entity.AttachmentSourceScrape,
		SourceURL: page.URL,
		Title:     strings.TrimSpace(page.Title),
	})
	if err != nil {
		tracer.Fail(span, err)
	}
	return att, err
}

// FromSearch 搜索结果渲染成编号摘要后保存为纯文本附件
func (n *Normalizer) FromSearch(ctx context.Context, owner Owner, query string, results []service.SearchResult) (*entity.Attachment, error) {
	ctx, span := attachmentTracer.Start(ctx, "attachment.Normalizer.FromSearch",
		trace.WithAttributes(attribute.Int("search.results", len(results))))
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("query is required")
	}
	name := "Search: " + truncateRunes(query, 80)
	att, err := n.storeText(ctx, owner, name, "search.txt", "text/plain", n.clip(RenderSearchDigest(query, results)),
		entity.AttachmentMetadata{Source: entity.AttachmentSourceSearch, Query: query})
	if err != nil {
		tracer.Fail(span, err)
	}
	return att, err
}

// RenderSearchDigest 生成搜索摘要文本
func RenderSearchDigest(query string, results []service.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	if len(results) == 0 {
		sb.WriteString("\nNo results found.\n")
		return sb.String()
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, strings.TrimSpace(r.Title))
		if r.URL != "" {
			fmt.Fprintf(&sb, "   %s\n", r.URL)
		}
		if s := strings.TrimSpace(r.Snippet); s != "" {
			fmt.Fprintf(&sb, "   %s\n", s)
		}
	}
	return sb.String()
}

func (n *Normalizer) storeText(ctx context.Context, owner Owner, fileName, rawName, mimeType, text string, meta entity.AttachmentMetadata) (*entity.Attachment, error) {
	safe := SanitizeFileName(rawName, n.now())
	p, err := storagePath(owner, CategoryDocuments, safe)
	if err != nil {
		return nil, err
	}
	if err := n.store.Put(ctx, p, []byte(text), mimeType+"; charset=utf-8"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to store document")
	}
	att := &entity.Attachment{
		UserID:         owner.UserID,
		ConversationID: owner.ConversationID,
		Kind:           entity.AttachmentKindText,
		FileName:       fileName,
		MimeType:       mimeType,
		SizeBytes:      int64(len(text)),
		StoragePath:    p,
		ExtractedText:  &text,
		Metadata:       meta,
	}
	return n.persist(ctx, att, []string{p})
}

func storagePath(o Owner, category, safe string) (string, error) {
	p, err := BuildStoragePath(o.UserID, o.ConversationID, category, safe)
	if err != nil {
		return "", apperrors.ErrInvalidParam.WithDetail("invalid storage path").WithError(err)
	}
	return p, nil
}

// persist 写库失败时清理已写入的对象
func (n *Normalizer) persist(ctx context.Context, att *entity.Attachment, written []string) (*entity.Attachment, error) {
	if err := att.Validate(); err != nil {
		n.cleanup(ctx, written)
		return nil, apperrors.Wrap(err, apperrors.CodeAttachmentProcessError, "invalid attachment")
	}
	if err := n.repo.Create(ctx, att); err != nil {
		n.cleanup(ctx, written)
		metrics.AttachmentNormalizeTotal.WithLabelValues(string(att.Kind), "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save attachment")
	}
	metrics.AttachmentNormalizeTotal.WithLabelValues(string(att.Kind), "success").Inc()
	logger.Info(ctx, "attachment created",
		"attachment_id", att.ID,
		"kind", att.Kind,
		"size_bytes", att.SizeBytes,
	)
	return att, nil
}

func (n *Normalizer) cleanup(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := n.store.Delete(ctx, p); err != nil {
			logger.Warn(ctx, "failed to clean up blob", "path", p, "error", err.Error())
		}
	}
}

func (n *Normalizer) clip(text string) string {
	if n.cfg.MaxExtractedRunes <= 0 {
		return text
	}
	return truncateRunes(text, n.cfg.MaxExtractedRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func displayFileName(original, fallback string) string {
	if s := strings.TrimSpace(original); s != "" {
		return truncateRunes(s, 255)
	}
	return fallback
}
