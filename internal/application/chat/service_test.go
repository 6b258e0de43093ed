package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doggo-chat-api/internal/application/attachment"
	chatctx "doggo-chat-api/internal/application/chat/context"
	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
)

const testUser = "user-1"

type harness struct {
	svc       *Service
	agent     *entity.Agent
	convs     *memConversations
	turns     *memTurns
	links     *memAttachments
	resolver  *stubResolver
	completer *scriptedCompleter
	usage     *recordingUsage
	tx        *recordingTx
}

func newHarness(t *testing.T, quotaErr error) *harness {
	t.Helper()
	agents := &memAgents{items: map[string]*entity.Agent{}}
	agent := entity.NewAgent(testUser, "doggo", "You are a helpful dog.", "sonnet")
	require.NoError(t, agents.Create(context.Background(), agent))

	h := &harness{
		agent:     agent,
		convs:     &memConversations{items: map[string]*entity.Conversation{}},
		turns:     &memTurns{},
		links:     &memAttachments{linked: map[string][]string{}},
		resolver:  &stubResolver{},
		completer: newScriptedCompleter(),
		usage:     &recordingUsage{},
	}
	h.tx = &recordingTx{convs: h.convs}
	h.svc = NewService(
		Repositories{Agents: agents, Conversations: h.convs, Turns: h.turns, Attachments: h.links, Tx: h.tx},
		h.resolver,
		chatctx.NewBuilder(nil, 20, 0, 0),
		h.completer,
		h.usage,
		stubQuota{err: quotaErr},
		&config.ChatConfig{},
	)
	return h
}

func TestSendNewConversationPersistsBothTurns(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "  Why do dogs walk?  "})
	require.NoError(t, err)
	h.svc.Wait()

	require.NotNil(t, out.Conversation)
	assert.Equal(t, "Why do dogs walk?", out.UserTurn.Content)
	assert.False(t, out.AssistantTurn.IsError)
	assert.Equal(t, "Dogs love walks.", out.AssistantTurn.Content)
	require.NotNil(t, out.AssistantTurn.TokensUsed)
	assert.Equal(t, 17, *out.AssistantTurn.TokensUsed)

	stored := h.turns.byConversation(out.Conversation.ID)
	require.Len(t, stored, 2)
	assert.Equal(t, entity.RoleUser, stored[0].Role)
	assert.Equal(t, entity.RoleAssistant, stored[1].Role)

	assert.ElementsMatch(t, []entity.UsageEventType{entity.UsageEventChatCompletion, entity.UsageEventTitleGeneration}, h.usage.types())
	assert.Equal(t, "Walking Dogs", h.convs.title(out.Conversation.ID))

	reqs := h.completer.calls(purposeChat)
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a helpful dog.", reqs[0].System)
	require.Len(t, reqs[0].Turns, 1)
}

func TestSendProviderFailureWritesErrorTurnWithoutBilling(t *testing.T) {
	h := newHarness(t, nil)
	h.completer.chat = &service.CompletionResult{Success: false, ErrorKind: service.ErrorKindTimeout, Model: "claude-sonnet-4-20250514"}

	out, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "hello"})
	require.NoError(t, err)
	h.svc.Wait()

	assert.True(t, out.AssistantTurn.IsError)
	assert.Equal(t, userFacingError(service.ErrorKindTimeout), out.AssistantTurn.Content)
	assert.Nil(t, out.AssistantTurn.TokensUsed)
	assert.Len(t, h.turns.byConversation(out.Conversation.ID), 2)
	assert.Empty(t, h.usage.types())
	assert.Empty(t, h.completer.calls(purposeTitle))
	assert.Empty(t, h.convs.title(out.Conversation.ID))
}

func TestSendHistoryExcludesCurrentTurn(t *testing.T) {
	h := newHarness(t, nil)
	first, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "first"})
	require.NoError(t, err)
	h.svc.Wait()

	_, err = h.svc.Send(context.Background(), &SendInput{UserID: testUser, ConversationID: first.Conversation.ID, Text: "second"})
	require.NoError(t, err)
	h.svc.Wait()

	reqs := h.completer.calls(purposeChat)
	require.Len(t, reqs, 2)
	turns := reqs[1].Turns
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Blocks[0].Text)
	assert.Equal(t, entity.RoleAssistant, turns[1].Role)
	assert.Equal(t, "second", turns[2].Blocks[0].Text)

	// 已有标题的会话不再生成
	assert.Len(t, h.completer.calls(purposeTitle), 1)
}

func TestSendLinksResolvedAttachmentsToUserTurn(t *testing.T) {
	h := newHarness(t, nil)
	text := "Bark bark."
	cid := uuid.NewString()
	doc := &entity.Attachment{ID: "att-1", ConversationID: cid, Kind: entity.AttachmentKindText, FileName: "notes.txt", ExtractedText: &text}
	h.resolver.result = &attachment.ResolveResult{
		Resolved: []*entity.Attachment{doc},
		Skipped:  []attachment.SkippedAttachment{{ID: "att-2", Reason: attachment.SkipNotFound}},
	}

	out, err := h.svc.Send(context.Background(), &SendInput{
		UserID: testUser, ConversationID: cid, AgentID: h.agent.ID, AttachmentIDs: []string{"att-1", " att-2 ", ""},
	})
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, []string{"att-1"}, h.links.linked[out.UserTurn.ID])
	assert.Len(t, out.Skipped, 1)

	req := h.completer.calls(purposeChat)[0]
	body := req.Turns[len(req.Turns)-1].Blocks[0].Text
	assert.True(t, strings.HasPrefix(body, "Document context:\n"))
	assert.Contains(t, body, "Bark bark.")
	assert.True(t, strings.HasSuffix(body, "Question: "+chatctx.DefaultInstruction))
}

func TestSendRejectsBeforeWriting(t *testing.T) {
	quotaErr := apperrors.ErrQuotaExceeded.WithDetail("limit reached")
	tests := []struct {
		name  string
		quota error
		in    func(h *harness) *SendInput
		want  error
	}{
		{
			name: "empty message",
			in:   func(h *harness) *SendInput { return &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "   "} },
			want: apperrors.ErrValidationFailed,
		},
		{
			name: "too many attachments",
			in: func(h *harness) *SendInput {
				ids := make([]string, 11)
				for i := range ids {
					ids[i] = "a"
				}
				return &SendInput{UserID: testUser, AgentID: h.agent.ID, AttachmentIDs: ids}
			},
			want: apperrors.ErrTooManyAttachments,
		},
		{
			name: "agent of another user",
			in:   func(h *harness) *SendInput { return &SendInput{UserID: "user-2", AgentID: h.agent.ID, Text: "hi"} },
			want: apperrors.ErrAgentNotFound,
		},
		{
			name: "malformed conversation id",
			in: func(h *harness) *SendInput {
				return &SendInput{UserID: testUser, ConversationID: "missing", AgentID: h.agent.ID, Text: "hi"}
			},
			want: apperrors.ErrInvalidParam,
		},
		{
			name: "new conversation id without agent",
			in: func(h *harness) *SendInput {
				return &SendInput{UserID: testUser, ConversationID: uuid.NewString(), Text: "hi"}
			},
			want: apperrors.ErrValidationFailed,
		},
		{
			name: "conversation of another user",
			in: func(h *harness) *SendInput {
				conv := entity.NewConversation("user-2", h.agent.ID)
				_ = h.convs.Create(context.Background(), conv)
				return &SendInput{UserID: testUser, ConversationID: conv.ID, Text: "hi"}
			},
			want: apperrors.ErrConversationNotFound,
		},
		{
			name:  "quota exceeded",
			quota: quotaErr,
			in:    func(h *harness) *SendInput { return &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "hi"} },
			want:  apperrors.ErrQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.quota)
			_, err := h.svc.Send(context.Background(), tt.in(h))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, h.turns.items)
			assert.Empty(t, h.completer.calls(purposeChat))
			assert.Zero(t, h.resolver.calls)
		})
	}
}

func TestListMessagesChecksOwnership(t *testing.T) {
	h := newHarness(t, nil)
	out, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "hi"})
	require.NoError(t, err)
	h.svc.Wait()

	page, err := h.svc.ListMessages(context.Background(), testUser, out.Conversation.ID, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 2, page.Total)

	_, err = h.svc.ListMessages(context.Background(), "user-2", out.Conversation.ID, repository.NewPagination(1, 20))
	assert.True(t, errors.Is(err, apperrors.ErrConversationNotFound))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Walking Dogs", CleanTitle(`"Walking Dogs."`))
	assert.Equal(t, "Dog Diet", CleanTitle("Title: Dog Diet\nExtra explanation"))
	assert.Equal(t, "Puppy", CleanTitle("  “Puppy”  "))
	assert.Empty(t, CleanTitle("   "))
	assert.Len(t, []rune(CleanTitle(strings.Repeat("长", 120))), 80)
}

func TestSendRollsBackNewConversationWhenUserTurnFails(t *testing.T) {
	h := newHarness(t, nil)
	h.turns.createErr = errors.New("disk full")

	_, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, Text: "hello"})
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err))
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.AsAppError(err).Code)

	assert.Equal(t, 1, h.tx.calls)
	assert.Empty(t, h.convs.items)
	assert.Empty(t, h.completer.calls(purposeChat))
}

func TestSendCreatesConversationWithClientIDForPreUploadedAttachments(t *testing.T) {
	h := newHarness(t, nil)
	cid := uuid.NewString()
	body := "Vet report."
	doc := &entity.Attachment{ID: "att-1", UserID: testUser, ConversationID: cid, Kind: entity.AttachmentKindPDF, FileName: "vet.pdf", ExtractedText: &body}
	h.resolver.result = &attachment.ResolveResult{Resolved: []*entity.Attachment{doc}}

	out, err := h.svc.Send(context.Background(), &SendInput{
		UserID: testUser, ConversationID: cid, AgentID: h.agent.ID, AttachmentIDs: []string{"att-1"},
	})
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, cid, out.Conversation.ID)
	assert.Empty(t, out.Skipped)
	assert.Equal(t, []string{"att-1"}, h.links.linked[out.UserTurn.ID])

	h.resolver.result = nil
	next, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, ConversationID: cid, Text: "And now?"})
	require.NoError(t, err)
	h.svc.Wait()
	assert.Equal(t, cid, next.Conversation.ID)
	assert.Len(t, h.turns.byConversation(cid), 4)
}

func TestSendSkipsAttachmentsOfOtherConversations(t *testing.T) {
	h := newHarness(t, nil)
	body := "Not yours."
	doc := &entity.Attachment{ID: "att-1", UserID: testUser, ConversationID: uuid.NewString(), Kind: entity.AttachmentKindText, FileName: "x.txt", ExtractedText: &body}
	h.resolver.result = &attachment.ResolveResult{Resolved: []*entity.Attachment{doc}}

	out, err := h.svc.Send(context.Background(), &SendInput{
		UserID: testUser, AgentID: h.agent.ID, Text: "hi", AttachmentIDs: []string{"att-1"},
	})
	require.NoError(t, err)
	h.svc.Wait()

	require.Len(t, out.Skipped, 1)
	assert.Equal(t, attachment.SkipConversationMismatch, out.Skipped[0].Reason)
	assert.Empty(t, h.links.linked[out.UserTurn.ID])

	req := h.completer.calls(purposeChat)[0]
	assert.Equal(t, "hi", req.Turns[len(req.Turns)-1].Blocks[0].Text)
}

func TestSendRejectsEmptyTextWhenNoAttachmentResolved(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.result = &attachment.ResolveResult{
		Skipped: []attachment.SkippedAttachment{{ID: "att-1", Reason: attachment.SkipBlobMissing}},
	}

	_, err := h.svc.Send(context.Background(), &SendInput{UserID: testUser, AgentID: h.agent.ID, AttachmentIDs: []string{"att-1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.Empty(t, h.convs.items)
	assert.Empty(t, h.turns.items)
	assert.Empty(t, h.completer.calls(purposeChat))
}
