package attachment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
)

func seedAttachment(t *testing.T, repo *fakeRepo, a *entity.Attachment) string {
	t.Helper()
	a.ID = uuid.NewString()
	if a.UserID == "" {
		a.UserID = testUser
	}
	a.ConversationID = testConv
	if a.StoragePath == "" {
		p, err := BuildStoragePath(a.UserID, testConv, CategoryDocuments, a.ID)
		require.NoError(t, err)
		a.StoragePath = p
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a.ID
}

func strPtr(s string) *string { return &s }

func TestResolvePreservesOrderAndReportsSkipped(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	r := NewResolver(repo, store, nil, &config.AttachmentsConfig{})

	pdfID := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindPDF, FileName: "a.pdf", ExtractedText: strPtr("Report body")})
	imgID := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindImage, FileName: "b.jpg"})
	otherID := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindText, UserID: "someone-else", ExtractedText: strPtr("x")})
	missingID := uuid.NewString()
	brokenID := uuid.NewString()
	repo.getErr[brokenID] = errors.New("connection reset")

	res := r.Resolve(context.Background(), testUser, []string{imgID, "not-a-uuid", missingID, pdfID, otherID, imgID, brokenID})

	assert.Equal(t, []string{imgID, pdfID}, res.IDs())
	assert.ElementsMatch(t, []SkippedAttachment{
		{ID: "not-a-uuid", Reason: SkipInvalidID},
		{ID: missingID, Reason: SkipNotFound},
		{ID: otherID, Reason: SkipForbidden},
		{ID: brokenID, Reason: SkipLookupFailed},
	}, res.Skipped)
}

func TestResolveLazilyExtractsDocumentText(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	cache := &countingCache{}
	r := NewResolver(repo, store, cache, &config.AttachmentsConfig{})

	id := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindText, FileName: "notes.txt"})
	saved, _ := repo.GetByID(context.Background(), id)
	require.NoError(t, store.Put(context.Background(), saved.StoragePath, []byte("lazy body"), "text/plain"))

	for i := 0; i < 2; i++ {
		res := r.Resolve(context.Background(), testUser, []string{id})
		require.Len(t, res.Resolved, 1)
		assert.Equal(t, "lazy body", res.Resolved[0].Text())
	}
	assert.Equal(t, 1, cache.loads)

	// 不回写数据库
	row, _ := repo.GetByID(context.Background(), id)
	assert.Nil(t, row.ExtractedText)
}

func TestResolveDropsMissingBlobAndBrokenPDF(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	r := NewResolver(repo, store, nil, &config.AttachmentsConfig{})

	noBlob := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindPDF, FileName: "gone.pdf"})
	broken := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindPDF, FileName: "bad.pdf"})
	row, _ := repo.GetByID(context.Background(), broken)
	require.NoError(t, store.Put(context.Background(), row.StoragePath, []byte("%PDF-1.4 junk"), "application/pdf"))

	res := r.Resolve(context.Background(), testUser, []string{noBlob, broken})
	assert.Empty(t, res.Resolved)
	assert.ElementsMatch(t, []SkippedAttachment{
		{ID: noBlob, Reason: SkipBlobMissing},
		{ID: broken, Reason: SkipExtractionFailed},
	}, res.Skipped)
}

func TestResolveRecordsLazyExtractionFailureInMetadata(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	r := NewResolver(repo, store, nil, &config.AttachmentsConfig{})

	broken := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindPDF, FileName: "bad.pdf"})
	binary := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindText, FileName: "bin.txt"})
	for id, data := range map[string][]byte{broken: []byte("%PDF-1.4 junk"), binary: {0xff, 0xfe, 0xfd}} {
		row, _ := repo.GetByID(context.Background(), id)
		require.NoError(t, store.Put(context.Background(), row.StoragePath, data, "application/octet-stream"))
	}

	res := r.Resolve(context.Background(), testUser, []string{broken, binary})
	assert.Empty(t, res.Resolved)

	for _, id := range []string{broken, binary} {
		row, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.NotEmpty(t, row.Metadata.ExtractionError, id)
		assert.Nil(t, row.ExtractedText)
	}
}

func TestResolveAppliesPerItemTimeout(t *testing.T) {
	repo, store := newFakeRepo(), newFakeStore()
	store.delay = time.Second
	r := NewResolver(repo, store, nil, &config.AttachmentsConfig{FetchTimeout: 20 * time.Millisecond})

	id := seedAttachment(t, repo, &entity.Attachment{Kind: entity.AttachmentKindText, FileName: "slow.txt"})

	start := time.Now()
	res := r.Resolve(context.Background(), testUser, []string{id})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, res.Resolved)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipExtractionFailed, res.Skipped[0].Reason)
}
