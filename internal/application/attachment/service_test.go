package attachment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
)

type stubScraper struct {
	page *service.ScrapedPage
	err  error
}

func (s stubScraper) Scrape(context.Context, string) (*service.ScrapedPage, error) {
	return s.page, s.err
}

type stubSearcher struct {
	results []service.SearchResult
}

func (s stubSearcher) Search(context.Context, string) ([]service.SearchResult, error) {
	return s.results, nil
}

func newTestService(repo *fakeRepo, store *fakeStore, scraper service.Scraper) *Service {
	return NewService(newTestNormalizer(repo, store), repo, store, scraper, stubSearcher{}, time.Minute)
}

func TestServiceDeleteRemovesBlobs(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	svc := newTestService(repo, store, stubScraper{})
	ctx := context.Background()

	att, err := svc.Upload(ctx, &UploadInput{
		Owner:    Owner{UserID: testUser, ConversationID: testConv},
		FileName: "pup.png",
		Data:     pngBytes(t, 64, 64),
	})
	require.NoError(t, err)
	require.NotNil(t, att.ThumbnailPath)

	_, err = svc.Get(ctx, "intruder", att.ID)
	assert.True(t, errors.Is(err, apperrors.ErrAttachmentNotFound))
	assert.Error(t, svc.Delete(ctx, "intruder", att.ID))

	urls, err := svc.SignedURL(ctx, testUser, att.ID)
	require.NoError(t, err)
	assert.Contains(t, urls.URL, att.StoragePath)
	assert.Contains(t, urls.ThumbnailURL, *att.ThumbnailPath)

	require.NoError(t, svc.Delete(ctx, testUser, att.ID))
	assert.False(t, store.has(att.StoragePath))
	assert.False(t, store.has(*att.ThumbnailPath))
	_, err = svc.Get(ctx, testUser, att.ID)
	assert.True(t, errors.Is(err, apperrors.ErrAttachmentNotFound))
}

func TestServiceScrapeValidatesAndWrapsCollectorErrors(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	owner := Owner{UserID: testUser, ConversationID: testConv}

	svc := newTestService(repo, store, stubScraper{err: errors.New("upstream 503")})
	_, err := svc.Scrape(context.Background(), owner, "ftp://nope")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))

	_, err = svc.Scrape(context.Background(), owner, "https://example.com")
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeCollectorError, appErr.Code)

	_, err = svc.Upload(context.Background(), &UploadInput{Owner: Owner{UserID: testUser, ConversationID: "x"}, Data: []byte("a")})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestServiceUploadRejectsUnsafeUserID(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	svc := newTestService(repo, store, stubScraper{})

	for _, userID := range []string{"../../escaped", "..", "a/b"} {
		_, err := svc.Upload(context.Background(), &UploadInput{
			Owner:    Owner{UserID: userID, ConversationID: testConv},
			FileName: "a.txt",
			Data:     []byte("hello"),
		})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidParam), userID)
	}
	assert.Zero(t, store.count())
}
