package context

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
)

type mapStore map[string][]byte

func (m mapStore) Put(context.Context, string, []byte, string) error { return nil }

func (m mapStore) Get(_ context.Context, path string) ([]byte, error) {
	if data, ok := m[path]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", path, service.ErrBlobNotFound)
}

func (m mapStore) Delete(context.Context, string) error { return nil }

func (m mapStore) SignedURL(context.Context, string, time.Duration) (string, error) { return "", nil }

func text(s string) *string { return &s }

func image(id, path string) *entity.Attachment {
	return &entity.Attachment{ID: id, Kind: entity.AttachmentKindImage, MimeType: "image/jpeg", StoragePath: path}
}

func TestBuildPlainText(t *testing.T) {
	b := NewBuilder(mapStore{}, 0, 0, 0)

	req := b.Build(context.Background(), &BuildInput{SystemPrompt: "You are a dog.", NewText: "Hello"})

	assert.Equal(t, "You are a dog.", req.System)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, entity.RoleUser, req.Turns[0].Role)
	require.Len(t, req.Turns[0].Blocks, 1)
	assert.Equal(t, service.TextBlock("Hello"), req.Turns[0].Blocks[0])
}

func TestBuildKeepsNewTextUnmodified(t *testing.T) {
	b := NewBuilder(mapStore{}, 0, 0, 0)

	raw := "  line one\n\n    indented code\n"
	req := b.Build(context.Background(), &BuildInput{NewText: raw})
	require.Len(t, req.Turns, 1)
	assert.Equal(t, service.TextBlock(raw), req.Turns[0].Blocks[0])

	req = b.Build(context.Background(), &BuildInput{NewText: " \n\t", Attachments: []*entity.Attachment{image("img-1", "missing.jpg")}})
	assert.Equal(t, service.TextBlock(DefaultInstruction), req.Turns[0].Blocks[0])
}

func TestBuildDocumentOnlyUsesDefaultQuestion(t *testing.T) {
	b := NewBuilder(mapStore{}, 0, 0, 0)

	req := b.Build(context.Background(), &BuildInput{
		NewText: "",
		Attachments: []*entity.Attachment{
			{ID: "a", Kind: entity.AttachmentKindPDF, FileName: "q3.pdf", ExtractedText: text("Report body")},
		},
	})

	require.Len(t, req.Turns, 1)
	got := req.Turns[0].Text()
	assert.True(t, strings.HasPrefix(got, "Document context:\n"))
	assert.Contains(t, got, "Report body")
	assert.True(t, strings.HasSuffix(got, "Question: "+DefaultInstruction))
	assert.Equal(t, "Document context:\n📄 Document: q3.pdf\nReport body\n---\n\n\nQuestion: Analyze the provided file(s)", got)
}

func TestBuildDropsImageWhoseDownloadFails(t *testing.T) {
	b := NewBuilder(mapStore{}, 0, 0, 0)

	req := b.Build(context.Background(), &BuildInput{
		NewText:     "what breed?",
		Attachments: []*entity.Attachment{image("img-1", "u/c/images/missing.jpg")},
	})

	require.Len(t, req.Turns, 1)
	assert.Equal(t, 0, req.ImageCount())
	assert.Equal(t, "what breed?", req.Turns[0].Text())
}

func TestBuildKeepsImageOrderWithPartialFailure(t *testing.T) {
	store := mapStore{"p/1.jpg": []byte("one"), "p/3.jpg": []byte("three")}
	b := NewBuilder(store, 0, 0, 0)

	req := b.Build(context.Background(), &BuildInput{
		NewText: "compare",
		Attachments: []*entity.Attachment{
			image("1", "p/1.jpg"), image("2", "p/2.jpg"), image("3", "p/3.jpg"),
		},
	})

	blocks := req.Turns[0].Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, service.BlockTypeText, blocks[0].Type)
	assert.Equal(t, []byte("one"), blocks[1].Image.Data)
	assert.Equal(t, []byte("three"), blocks[2].Image.Data)
	assert.Equal(t, "image/jpeg", blocks[1].Image.MediaType)
}

func TestBuildTruncatesHistoryToMostRecent(t *testing.T) {
	var history []*entity.ConversationTurn
	for i := 0; i < 25; i++ {
		role := entity.RoleUser
		if i%2 == 1 {
			role = entity.RoleAssistant
		}
		history = append(history, &entity.ConversationTurn{Role: role, Content: fmt.Sprintf("turn-%02d", i)})
	}
	b := NewBuilder(mapStore{}, 20, 0, 0)

	req := b.Build(context.Background(), &BuildInput{History: history, NewText: "next"})

	require.Len(t, req.Turns, 21)
	assert.Equal(t, "turn-05", req.Turns[0].Text())
	assert.Equal(t, entity.RoleAssistant, req.Turns[0].Role)
	assert.Equal(t, "turn-24", req.Turns[19].Text())
	assert.Equal(t, "next", req.Turns[20].Text())
}

func TestBuildSkipsErrorTurns(t *testing.T) {
	history := []*entity.ConversationTurn{
		{Role: entity.RoleUser, Content: "hi"},
		{Role: entity.RoleAssistant, Content: "provider timed out", IsError: true},
	}
	req := NewBuilder(mapStore{}, 0, 0, 0).Build(context.Background(), &BuildInput{History: history, NewText: "again"})
	require.Len(t, req.Turns, 2)
	assert.Equal(t, "hi", req.Turns[0].Text())
}

func TestBuildIsDeterministic(t *testing.T) {
	store := mapStore{"p/1.jpg": []byte("one")}
	b := NewBuilder(store, 0, 0, 0)
	in := &BuildInput{
		SystemPrompt: "sys",
		History:      []*entity.ConversationTurn{{Role: entity.RoleUser, Content: "earlier"}, {Role: entity.RoleAssistant, Content: "reply"}},
		NewText:      "summarize",
		Attachments: []*entity.Attachment{
			{ID: "d1", Kind: entity.AttachmentKindText, FileName: "page.md", ExtractedText: text("page text"),
				Metadata: entity.AttachmentMetadata{SourceURL: "https://example.com"}},
			image("1", "p/1.jpg"),
			{ID: "d2", Kind: entity.AttachmentKindText, FileName: "Search: kibble", ExtractedText: text("results"),
				Metadata: entity.AttachmentMetadata{Query: "kibble"}},
			{ID: "d3", Kind: entity.AttachmentKindPDF, FileName: "scan.pdf"},
		},
	}

	first := b.Build(context.Background(), in)
	second := b.Build(context.Background(), in)
	assert.Equal(t, first, second)

	want := "Document context:\n" +
		"🌐 Document: page.md\nSource: https://example.com\npage text\n---\n" +
		"🔍 Document: Search: kibble\nSearch query: kibble\nresults\n---\n" +
		"📄 Document: scan.pdf\n(content unavailable)\n---\n" +
		"\n\nQuestion: summarize"
	assert.Equal(t, want, first.Turns[2].Text())
	assert.Equal(t, 1, first.ImageCount())
}
