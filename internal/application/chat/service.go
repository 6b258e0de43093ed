// Package chat 对话编排：解析附件、组装上下文、调用模型、落库与异步记账
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doggo-chat-api/internal/application/attachment"
	chatctx "doggo-chat-api/internal/application/chat/context"
	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	apperrors "doggo-chat-api/pkg/errors"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
)

var chatTracer = otel.Tracer("chat")

const purposeChat = "chat"

// AttachmentResolver 附件解析
type AttachmentResolver interface {
	Resolve(ctx context.Context, userID string, ids []string) *attachment.ResolveResult
}

// ContextBuilder 上下文组装
type ContextBuilder interface {
	Build(ctx context.Context, in *chatctx.BuildInput) *service.UnifiedRequest
	HistoryLimit() int
}

// Repositories 对话依赖的仓储
type Repositories struct {
	Agents        repository.AgentRepository
	Conversations repository.ConversationRepository
	Turns         repository.ConversationTurnRepository
	Attachments   repository.AttachmentRepository
	// Tx 为 nil 时不开启事务
	Tx repository.Transactor
}

// SendInput 一次用户发言
type SendInput struct {
	UserID string
	// ConversationID 为空时由服务端生成；客户端可先上传附件再用同一 UUID 创建会话
	ConversationID string
	AgentID        string
	Text           string
	AttachmentIDs  []string
}

// SendOutput 发言结果。提供商失败时 AssistantTurn.IsError=true，不返回错误。
type SendOutput struct {
	Conversation  *entity.Conversation
	UserTurn      *entity.ConversationTurn
	AssistantTurn *entity.ConversationTurn
	Result        *service.CompletionResult
	Skipped       []attachment.SkippedAttachment
}

// Service 对话服务
type Service struct {
	repos     Repositories
	resolver  AttachmentResolver
	builder   ContextBuilder
	completer service.Completer
	usage     service.UsageRecorder
	quota     service.QuotaChecker
	cfg       config.ChatConfig

	tasks sync.WaitGroup
}

func NewService(
	repos Repositories,
	resolver AttachmentResolver,
	builder ContextBuilder,
	completer service.Completer,
	usage service.UsageRecorder,
	quota service.QuotaChecker,
	cfg *config.ChatConfig,
) *Service {
	c := *cfg
	if c.MaxAttachments <= 0 {
		c.MaxAttachments = 10
	}
	if c.TitleModel == "" {
		c.TitleModel = "haiku"
	}
	if c.TitleTimeout <= 0 {
		c.TitleTimeout = 30 * time.Second
	}
	if c.UsageTimeout <= 0 {
		c.UsageTimeout = 10 * time.Second
	}
	return &Service{
		repos:     repos,
		resolver:  resolver,
		builder:   builder,
		completer: completer,
		usage:     usage,
		quota:     quota,
		cfg:       c,
	}
}

// turnContext 一次发言在调用模型前准备好的全部状态
type turnContext struct {
	userID       string
	agent        *entity.Agent
	conversation *entity.Conversation
	userTurn     *entity.ConversationTurn
	request      *service.UnifiedRequest
	skipped      []attachment.SkippedAttachment
	userText     string
}

// Send 同步发言：调用一次模型并写入恰好一条助手轮次
func (s *Service) Send(ctx context.Context, in *SendInput) (*SendOutput, error) {
	ctx, span := chatTracer.Start(ctx, "chat.Service.Send")
	defer span.End()

	tc, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", tc.conversation.ID))

	result := s.completer.Complete(service.WithPurpose(ctx, purposeChat), tc.request, tc.agent.Model, params(tc.agent))
	return s.finalize(ctx, tc, result)
}

// prepare 校验、加载、落用户轮次并组装请求
func (s *Service) prepare(ctx context.Context, in *SendInput) (*turnContext, error) {
	text := strings.TrimSpace(in.Text)
	ids := compactIDs(in.AttachmentIDs)
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return nil, apperrors.ErrUnauthorized
	case text == "" && len(ids) == 0:
		return nil, apperrors.ErrValidationFailed.WithDetail("text or attachments are required")
	case len(ids) > s.cfg.MaxAttachments:
		return nil, apperrors.ErrTooManyAttachments.WithDetail(fmt.Sprintf("at most %d attachments per message", s.cfg.MaxAttachments))
	}

	tc := &turnContext{userID: in.UserID, userText: text}

	agentID := strings.TrimSpace(in.AgentID)
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID != "" {
		if _, err := uuid.Parse(conversationID); err != nil {
			return nil, apperrors.ErrInvalidParam.WithDetail("conversation_id must be a uuid")
		}
		conv, err := s.repos.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load conversation")
		}
		if conv != nil {
			if conv.UserID != in.UserID {
				return nil, apperrors.ErrConversationNotFound
			}
			tc.conversation = conv
			agentID = conv.AgentID
		}
	} else {
		conversationID = uuid.NewString()
	}
	if agentID == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("agent_id is required for a new conversation")
	}

	agent, err := s.repos.Agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load agent")
	}
	if agent == nil || agent.UserID != in.UserID {
		return nil, apperrors.ErrAgentNotFound
	}
	tc.agent = agent

	if s.quota != nil {
		if err := s.quota.Check(ctx, in.UserID); err != nil {
			return nil, err
		}
	}

	// 先读历史再写入本轮，历史中不包含当前发言；新会话没有历史
	var history []*entity.ConversationTurn
	if tc.conversation != nil {
		ctx = logger.WithContext(ctx, logger.ConversationIDKey, tc.conversation.ID)
		var err error
		history, err = s.repos.Turns.ListRecent(ctx, tc.conversation.ID, s.builder.HistoryLimit())
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load history")
		}
	}

	resolved := &attachment.ResolveResult{}
	if len(ids) > 0 {
		resolved = s.resolver.Resolve(ctx, in.UserID, ids)
	}
	resolved = bindToConversation(ctx, resolved, conversationID)
	tc.skipped = resolved.Skipped
	if text == "" && len(resolved.Resolved) == 0 {
		return nil, apperrors.ErrValidationFailed.WithDetail("none of the attachments could be loaded")
	}

	// 新会话与用户轮次在同一事务内写入
	err = s.withTx(ctx, func(ctx context.Context) error {
		if tc.conversation == nil {
			conv := entity.NewConversation(in.UserID, agent.ID)
			conv.ID = conversationID
			if err := s.repos.Conversations.Create(ctx, conv); err != nil {
				return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create conversation")
			}
			tc.conversation = conv
		}
		userTurn := entity.NewUserTurn(tc.conversation.ID, text)
		if err := s.repos.Turns.Create(ctx, userTurn); err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save message")
		}
		tc.userTurn = userTurn
		return nil
	})
	if err != nil {
		return nil, err
	}
	userTurn := tc.userTurn
	ctx = logger.WithContext(ctx, logger.ConversationIDKey, tc.conversation.ID)

	if linkIDs := resolved.IDs(); len(linkIDs) > 0 {
		if _, err := s.repos.Attachments.LinkToMessage(ctx, linkIDs, userTurn.ID); err != nil {
			logger.Warn(ctx, "failed to link attachments to message", "message_id", userTurn.ID, "error", err.Error())
		}
	}

	tc.request = s.builder.Build(ctx, &chatctx.BuildInput{
		SystemPrompt: agent.SystemPrompt,
		History:      history,
		NewText:      in.Text,
		Attachments:  resolved.Resolved,
	})
	return tc, nil
}

// finalize 写入助手轮次并派发异步任务；客户端断开后仍需落库
func (s *Service) finalize(ctx context.Context, tc *turnContext, result *service.CompletionResult) (*SendOutput, error) {
	ctx = logger.WithContext(context.WithoutCancel(ctx), logger.ConversationIDKey, tc.conversation.ID)

	var turn *entity.ConversationTurn
	if result.Success {
		turn = entity.NewAssistantTurn(tc.conversation.ID, result.Content, result.Model, result.Usage.Total(), result.Latency)
	} else {
		turn = entity.NewAssistantErrorTurn(tc.conversation.ID, userFacingError(result.ErrorKind), result.Model, result.Latency)
	}
	if err := s.repos.Turns.Create(ctx, turn); err != nil {
		logger.Error(ctx, "failed to save assistant turn", err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save reply")
	}

	s.dispatchUsage(ctx, tc, result, entity.UsageEventChatCompletion)
	if result.Success && !tc.conversation.HasTitle() {
		s.dispatchTitle(ctx, tc, result.Content)
	}

	return &SendOutput{
		Conversation:  tc.conversation,
		UserTurn:      tc.userTurn,
		AssistantTurn: turn,
		Result:        result,
		Skipped:       tc.skipped,
	}, nil
}

// ListMessages 分页读取会话消息
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error) {
	conv, err := s.repos.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load conversation")
	}
	if conv == nil || conv.UserID != userID {
		return nil, apperrors.ErrConversationNotFound
	}
	page, err := s.repos.Turns.ListByConversation(ctx, conversationID, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list messages")
	}
	return page, nil
}

// bindToConversation 只保留归属目标会话的附件，其他会话的附件记为跳过
func bindToConversation(ctx context.Context, res *attachment.ResolveResult, conversationID string) *attachment.ResolveResult {
	out := &attachment.ResolveResult{Skipped: res.Skipped}
	for _, a := range res.Resolved {
		if a.ConversationID != conversationID {
			logger.Warn(ctx, "attachment belongs to another conversation",
				"attachment_id", a.ID, "attachment_conversation_id", a.ConversationID)
			metrics.AttachmentDegradedTotal.WithLabelValues("resolve", attachment.SkipConversationMismatch).Inc()
			out.Skipped = append(out.Skipped, attachment.SkippedAttachment{ID: a.ID, Reason: attachment.SkipConversationMismatch})
			continue
		}
		out.Resolved = append(out.Resolved, a)
	}
	return out
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.repos.Tx == nil {
		return fn(ctx)
	}
	return s.repos.Tx.WithTransaction(ctx, fn)
}

// Wait 等待已派发的后台任务结束（优雅退出与测试使用）
func (s *Service) Wait() {
	s.tasks.Wait()
}

func (s *Service) dispatchUsage(ctx context.Context, tc *turnContext, result *service.CompletionResult, eventType entity.UsageEventType) {
	if s.usage == nil || !result.Billable() {
		return
	}
	in := service.UsageInput{
		UserID:         tc.userID,
		AgentID:        tc.agent.ID,
		ConversationID: tc.conversation.ID,
		EventType:      eventType,
		Result:         result,
	}
	s.goBackground(ctx, "usage_"+string(eventType), s.cfg.UsageTimeout, func(ctx context.Context) error {
		_, err := s.usage.Record(ctx, in)
		return err
	})
}

// goBackground 在脱离请求生命周期的 context 上执行任务，失败只记录日志
func (s *Service) goBackground(ctx context.Context, task string, timeout time.Duration, fn func(ctx context.Context) error) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		ctx, span := chatTracer.Start(ctx, "chat.background."+task, trace.WithNewRoot(),
			trace.WithLinks(trace.LinkFromContext(ctx)))
		defer span.End()

		defer func() {
			if r := recover(); r != nil {
				metrics.BackgroundTaskTotal.WithLabelValues(task, "panic").Inc()
				logger.Error(ctx, "background task panicked", nil, "task", task, "panic", r)
			}
		}()

		if err := fn(ctx); err != nil {
			metrics.BackgroundTaskTotal.WithLabelValues(task, "error").Inc()
			logger.Error(ctx, "background task failed", err, "task", task)
			return
		}
		metrics.BackgroundTaskTotal.WithLabelValues(task, "success").Inc()
	}()
}

func params(agent *entity.Agent) service.CompletionParams {
	return service.CompletionParams{Temperature: agent.Temperature, MaxTokens: agent.MaxTokens}
}

// userFacingError 写入助手错误轮次的说明文字
func userFacingError(kind service.ErrorKind) string {
	switch kind {
	case service.ErrorKindTimeout:
		return "Sorry, the model took too long to respond. Please try again."
	case service.ErrorKindRateLimited:
		return "The model provider is busy right now. Please try again in a moment."
	case service.ErrorKindNotConfigured:
		return "This model is not available right now. Please choose another model."
	case service.ErrorKindCanceled:
		return "The request was canceled before the reply finished."
	default:
		return "Sorry, something went wrong while generating a response. Please try again."
	}
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
