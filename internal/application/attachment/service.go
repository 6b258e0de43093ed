package attachment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
	"doggo-chat-api/pkg/logger"
)

// SignedURLs 附件的临时访问地址
type SignedURLs struct {
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Service 附件管理入口（上传、抓取、搜索、查询、删除）
type Service struct {
	normalizer *Normalizer
	repo       repository.AttachmentRepository
	store      service.BlobStore
	scraper    service.Scraper
	searcher   service.Searcher
	urlTTL     time.Duration
}

func NewService(
	normalizer *Normalizer,
	repo repository.AttachmentRepository,
	store service.BlobStore,
	scraper service.Scraper,
	searcher service.Searcher,
	urlTTL time.Duration,
) *Service {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Service{
		normalizer: normalizer,
		repo:       repo,
		store:      store,
		scraper:    scraper,
		searcher:   searcher,
		urlTTL:     urlTTL,
	}
}

func (s *Service) Upload(ctx context.Context, in *UploadInput) (*entity.Attachment, error) {
	if err := validateOwner(in.Owner); err != nil {
		return nil, err
	}
	return s.normalizer.Upload(ctx, in)
}

// Scrape 抓取网页并保存为文本附件
func (s *Service) Scrape(ctx context.Context, owner Owner, url string) (*entity.Attachment, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, apperrors.ErrInvalidParam.WithDetail("url must be http(s)")
	}
	page, err := s.scraper.Scrape(ctx, url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCollectorError, "scrape failed")
	}
	return s.normalizer.FromScrape(ctx, owner, page)
}

// Search 执行搜索并把结果摘要保存为文本附件
func (s *Service) Search(ctx context.Context, owner Owner, query string) (*entity.Attachment, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("query is required")
	}
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCollectorError, "search failed")
	}
	return s.normalizer.FromSearch(ctx, owner, query, results)
}

// Get 读取附件，只能访问自己的附件
func (s *Service) Get(ctx context.Context, userID, id string) (*entity.Attachment, error) {
	att, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load attachment")
	}
	if att == nil || att.UserID != userID {
		return nil, apperrors.ErrAttachmentNotFound
	}
	return att, nil
}

func (s *Service) ListByConversation(ctx context.Context, userID, conversationID string) ([]*entity.Attachment, error) {
	items, err := s.repo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list attachments")
	}
	owned := items[:0]
	for _, a := range items {
		if a.UserID == userID {
			owned = append(owned, a)
		}
	}
	return owned, nil
}

// Delete 删除附件行及其对象；对象删除失败只记录日志
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	att, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, att.ID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete attachment")
	}

	paths := []string{att.StoragePath}
	if att.ThumbnailPath != nil {
		paths = append(paths, *att.ThumbnailPath)
	}
	for _, p := range paths {
		if err := s.store.Delete(ctx, p); err != nil {
			logger.Warn(ctx, "failed to delete attachment blob", "attachment_id", att.ID, "path", p, "error", err.Error())
		}
	}
	return nil
}

// SignedURL 生成原文件与缩略图的临时访问地址
func (s *Service) SignedURL(ctx context.Context, userID, id string) (*SignedURLs, error) {
	att, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out := &SignedURLs{ExpiresAt: time.Now().Add(s.urlTTL)}
	if out.URL, err = s.store.SignedURL(ctx, att.StoragePath, s.urlTTL); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to sign url")
	}
	if att.ThumbnailPath != nil {
		if out.ThumbnailURL, err = s.store.SignedURL(ctx, *att.ThumbnailPath, s.urlTTL); err != nil {
			logger.Warn(ctx, "failed to sign thumbnail url", "attachment_id", att.ID, "error", err.Error())
		}
	}
	return out, nil
}

func validateOwner(o Owner) error {
	if strings.TrimSpace(o.UserID) == "" {
		return apperrors.ErrUnauthorized
	}
	if !SafePathSegment(o.UserID) {
		return apperrors.ErrInvalidParam.WithDetail("user id contains unsupported characters")
	}
	if _, err := uuid.Parse(o.ConversationID); err != nil {
		return apperrors.ErrInvalidParam.WithDetail("conversation_id must be a uuid")
	}
	return nil
}
