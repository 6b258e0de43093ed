package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
)

// 跳过原因
const (
	SkipInvalidID        = "invalid_id"
	SkipNotFound         = "not_found"
	SkipForbidden        = "forbidden"
	SkipLookupFailed     = "lookup_failed"
	SkipBlobMissing      = "blob_missing"
	SkipExtractionFailed = "extraction_failed"
	// SkipConversationMismatch 附件属于其他会话
	SkipConversationMismatch = "conversation_mismatch"
)

// SkippedAttachment 未能解析的附件及原因
type SkippedAttachment struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ResolveResult 解析结果。Resolved 保持输入顺序，且是输入的子集。
type ResolveResult struct {
	Resolved []*entity.Attachment
	Skipped  []SkippedAttachment
}

// IDs 已解析附件的 ID
func (r *ResolveResult) IDs() []string {
	ids := make([]string, 0, len(r.Resolved))
	for _, a := range r.Resolved {
		ids = append(ids, a.ID)
	}
	return ids
}

// Resolver 并发加载附件行，必要时补做文本提取；单个失败不影响其他附件
type Resolver struct {
	repo        repository.AttachmentRepository
	store       service.BlobStore
	cache       service.ExtractedTextCache
	timeout     time.Duration
	concurrency int
	maxRunes    int
}

// NewResolver cache 可以为 nil
func NewResolver(repo repository.AttachmentRepository, store service.BlobStore, cache service.ExtractedTextCache, cfg *config.AttachmentsConfig) *Resolver {
	r := &Resolver{
		repo:        repo,
		store:       store,
		cache:       cache,
		timeout:     cfg.FetchTimeout,
		concurrency: cfg.FetchConcurrency,
		maxRunes:    cfg.MaxExtractedRunes,
	}
	if r.timeout <= 0 {
		r.timeout = 15 * time.Second
	}
	if r.concurrency <= 0 {
		r.concurrency = 10
	}
	return r
}

type resolveOutcome struct {
	att    *entity.Attachment
	reason string
	err    error
}

// Resolve 解析 userID 名下的附件，重复 ID 只保留第一次出现
func (r *Resolver) Resolve(ctx context.Context, userID string, ids []string) *ResolveResult {
	ctx, span := attachmentTracer.Start(ctx, "attachment.Resolver.Resolve",
		trace.WithAttributes(attribute.Int("attachment.requested", len(ids))))
	defer span.End()

	start := time.Now()
	defer func() { metrics.AttachmentResolveDuration.Observe(time.Since(start).Seconds()) }()

	result := &ResolveResult{}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if _, err := uuid.Parse(id); err != nil {
			result.Skipped = append(result.Skipped, SkippedAttachment{ID: raw, Reason: SkipInvalidID})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	outcomes := make([]resolveOutcome, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range unique {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, r.timeout)
			defer cancel()
			outcomes[i] = r.resolveOne(itemCtx, userID, id)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.att != nil {
			result.Resolved = append(result.Resolved, o.att)
			continue
		}
		result.Skipped = append(result.Skipped, SkippedAttachment{ID: unique[i], Reason: o.reason})
		metrics.AttachmentDegradedTotal.WithLabelValues("resolve", o.reason).Inc()
		args := []any{"attachment_id", unique[i], "reason", o.reason}
		if o.err != nil {
			args = append(args, "error", o.err.Error())
		}
		logger.Warn(ctx, "attachment skipped", args...)
	}

	span.SetAttributes(
		attribute.Int("attachment.resolved", len(result.Resolved)),
		attribute.Int("attachment.skipped", len(result.Skipped)),
	)
	return result
}

func (r *Resolver) resolveOne(ctx context.Context, userID, id string) resolveOutcome {
	att, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return resolveOutcome{reason: SkipLookupFailed, err: err}
	}
	if att == nil {
		return resolveOutcome{reason: SkipNotFound}
	}
	if att.UserID != userID {
		return resolveOutcome{reason: SkipForbidden}
	}
	if att.HasText() || !att.Kind.SupportsLazyExtraction() {
		return resolveOutcome{att: att}
	}

	text, err := r.lazyText(ctx, att)
	if err != nil {
		if errors.Is(err, service.ErrBlobNotFound) {
			return resolveOutcome{reason: SkipBlobMissing, err: err}
		}
		return resolveOutcome{reason: SkipExtractionFailed, err: err}
	}
	// 只更新内存副本，附件内容不可变
	att.ExtractedText = &text
	return resolveOutcome{att: att}
}

func (r *Resolver) lazyText(ctx context.Context, att *entity.Attachment) (string, error) {
	load := func(ctx context.Context) (string, error) {
		data, err := r.store.Get(ctx, att.StoragePath)
		if err != nil {
			return "", err
		}
		var (
			text  string
			pages int
		)
		switch att.Kind {
		case entity.AttachmentKindPDF:
			text, pages, err = ExtractPDFText(data)
		default:
			if !utf8.Valid(data) {
				err = fmt.Errorf("document blob is not valid UTF-8")
			}
			text = string(data)
		}
		r.recordExtraction(ctx, att, pages, err)
		if err != nil {
			return "", err
		}
		if r.maxRunes > 0 {
			text = truncateRunes(text, r.maxRunes)
		}
		return text, nil
	}

	if r.cache == nil {
		return load(ctx)
	}
	return r.cache.GetOrLoad(ctx, att.ID, load)
}

// recordExtraction 回写补做提取的页数或失败原因，只改 metadata；写库失败只记日志
func (r *Resolver) recordExtraction(ctx context.Context, att *entity.Attachment, pages int, extractErr error) {
	meta := att.Metadata
	if extractErr != nil {
		meta.ExtractionError = extractErr.Error()
	} else {
		meta.ExtractionError = ""
		if pages > 0 {
			meta.PageCount = pages
		}
	}
	if meta == att.Metadata {
		return
	}
	if err := r.repo.UpdateMetadata(ctx, att.ID, meta); err != nil {
		logger.Warn(ctx, "failed to record extraction metadata", "attachment_id", att.ID, "error", err.Error())
		return
	}
	att.Metadata = meta
}
