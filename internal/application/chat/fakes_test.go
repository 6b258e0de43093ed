package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
)

type memAgents struct{ items map[string]*entity.Agent }

func (m *memAgents) Create(_ context.Context, a *entity.Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.items[a.ID] = a
	return nil
}

func (m *memAgents) GetByID(_ context.Context, id string) (*entity.Agent, error) {
	return m.items[id], nil
}

func (m *memAgents) GetByUserAndName(_ context.Context, userID, name string) (*entity.Agent, error) {
	for _, a := range m.items {
		if a.UserID == userID && a.Name == name {
			return a, nil
		}
	}
	return nil, nil
}

type memConversations struct {
	mu    sync.Mutex
	items map[string]*entity.Conversation
}

func (m *memConversations) Create(_ context.Context, c *entity.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *memConversations) GetByID(_ context.Context, id string) (*entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memConversations) SetTitleIfEmpty(_ context.Context, id, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok || c.HasTitle() {
		return false, nil
	}
	c.Title = &title
	return true, nil
}

func (m *memConversations) title(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.items[id]; ok && c.Title != nil {
		return *c.Title
	}
	return ""
}

type memTurns struct {
	mu        sync.Mutex
	items     []*entity.ConversationTurn
	createErr error
}

func (m *memTurns) Create(_ context.Context, t *entity.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.items = append(m.items, t)
	return nil
}

func (m *memTurns) ListRecent(_ context.Context, conversationID string, limit int) ([]*entity.ConversationTurn, error) {
	all := m.byConversation(conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memTurns) ListByConversation(_ context.Context, conversationID string, p repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error) {
	all := m.byConversation(conversationID)
	return repository.NewPagedResult(all, int64(len(all)), p), nil
}

func (m *memTurns) byConversation(conversationID string) []*entity.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ConversationTurn
	for _, t := range m.items {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	return out
}

type txKey struct{}

// recordingTx 模拟事务：失败时回滚 fn 内新建的会话
type recordingTx struct {
	convs *memConversations
	calls int
}

func (r *recordingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	r.convs.mu.Lock()
	before := make(map[string]*entity.Conversation, len(r.convs.items))
	for k, v := range r.convs.items {
		before[k] = v
	}
	r.convs.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		r.convs.mu.Lock()
		r.convs.items = before
		r.convs.mu.Unlock()
		return err
	}
	return nil
}

type memAttachments struct {
	repository.AttachmentRepository
	mu     sync.Mutex
	linked map[string][]string
}

func (m *memAttachments) LinkToMessage(_ context.Context, ids []string, messageID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linked[messageID] = append(m.linked[messageID], ids...)
	return int64(len(ids)), nil
}

type stubResolver struct {
	result *attachment.ResolveResult
	calls  int
}

func (r *stubResolver) Resolve(_ context.Context, _ string, _ []string) *attachment.ResolveResult {
	r.calls++
	if r.result == nil {
		return &attachment.ResolveResult{}
	}
	return r.result
}

// scriptedCompleter 按用途返回预设结果并记录请求
type scriptedCompleter struct {
	mu       sync.Mutex
	chat     *service.CompletionResult
	title    *service.CompletionResult
	deltas   []string
	requests map[string][]*service.UnifiedRequest
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		chat: &service.CompletionResult{
			Success: true, Content: "Dogs love walks.", Model: "claude-sonnet-4-20250514",
			Provider: "anthropic", Alias: "sonnet", Usage: service.TokenUsage{InputTokens: 12, OutputTokens: 5},
		},
		title: &service.CompletionResult{
			Success: true, Content: "\"Walking Dogs.\"", Model: "claude-3-5-haiku-20241022",
			Provider: "anthropic", Alias: "haiku", Usage: service.TokenUsage{InputTokens: 20, OutputTokens: 3},
		},
		requests: map[string][]*service.UnifiedRequest{},
	}
}

func (c *scriptedCompleter) Route(modelID string) service.ModelRoute {
	return service.ModelRoute{Alias: modelID}
}

func (c *scriptedCompleter) Complete(ctx context.Context, req *service.UnifiedRequest, _ string, _ service.CompletionParams) *service.CompletionResult {
	purpose := service.PurposeFromContext(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[purpose] = append(c.requests[purpose], req)
	if purpose == purposeTitle {
		return c.title
	}
	return c.chat
}

func (c *scriptedCompleter) Stream(ctx context.Context, req *service.UnifiedRequest, _ string, _ service.CompletionParams) <-chan service.StreamEvent {
	c.mu.Lock()
	c.requests[service.PurposeFromContext(ctx)] = append(c.requests[service.PurposeFromContext(ctx)], req)
	c.mu.Unlock()

	ch := make(chan service.StreamEvent, len(c.deltas)+1)
	for _, d := range c.deltas {
		ch <- service.StreamEvent{Type: service.StreamEventDelta, Delta: d}
	}
	terminal := service.StreamEventDone
	if !c.chat.Success {
		terminal = service.StreamEventError
	}
	ch <- service.StreamEvent{Type: terminal, Result: c.chat}
	close(ch)
	return ch
}

func (c *scriptedCompleter) calls(purpose string) []*service.UnifiedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[purpose]
}

type recordingUsage struct {
	mu     sync.Mutex
	events []service.UsageInput
}

func (u *recordingUsage) Record(_ context.Context, in service.UsageInput) (*entity.UsageEvent, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, in)
	return &entity.UsageEvent{}, nil
}

func (u *recordingUsage) types() []entity.UsageEventType {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []entity.UsageEventType
	for _, e := range u.events {
		out = append(out, e.EventType)
	}
	return out
}

type stubQuota struct{ err error }

func (q stubQuota) Check(context.Context, string) error { return q.err }
