package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
)

const (
	purposeTitle   = "title"
	maxTitleRunes  = 80
	titleMaxTokens = 32
)

const titleSystemPrompt = "You write short titles for chat conversations. " +
	"Reply with a title of at most six words. No quotes, no trailing punctuation."

var titleTemperature = 0.3

// dispatchTitle 首轮成功后异步生成标题，先写入者生效
func (s *Service) dispatchTitle(ctx context.Context, tc *turnContext, reply string) {
	userText := tc.userText
	if userText == "" {
		userText = "(attachments only)"
	}
	s.goBackground(ctx, "title", s.cfg.TitleTimeout, func(ctx context.Context) error {
		return s.generateTitle(ctx, tc, userText, reply)
	})
}

func (s *Service) generateTitle(ctx context.Context, tc *turnContext, userText, reply string) error {
	maxTokens := titleMaxTokens
	req := &service.UnifiedRequest{
		System: titleSystemPrompt,
		Turns: []service.Turn{{
			Role: entity.RoleUser,
			Blocks: []service.ContentBlock{service.TextBlock(
				"User: " + truncate(userText, 500) + "\nAssistant: " + truncate(reply, 500) + "\n\nTitle:",
			)},
		}},
	}
	result := s.completer.Complete(service.WithPurpose(ctx, purposeTitle), req, s.cfg.TitleModel, service.CompletionParams{
		Temperature: &titleTemperature,
		MaxTokens:   &maxTokens,
	})

	// 标题调用同样计费，失败结果不计
	if s.usage != nil && result.Billable() {
		if _, err := s.usage.Record(ctx, service.UsageInput{
			UserID:         tc.userID,
			AgentID:        tc.agent.ID,
			ConversationID: tc.conversation.ID,
			EventType:      entity.UsageEventTitleGeneration,
			Result:         result,
		}); err != nil {
			logger.Warn(ctx, "failed to record title usage", "error", err.Error())
		}
	}

	if !result.Success {
		logger.Warn(ctx, "title generation failed", "error_kind", string(result.ErrorKind))
		return nil
	}
	title := CleanTitle(result.Content)
	if title == "" {
		return nil
	}
	updated, err := s.repos.Conversations.SetTitleIfEmpty(ctx, tc.conversation.ID, title)
	if err != nil {
		return err
	}
	if updated {
		logger.Info(ctx, "conversation titled", "title", title)
	}
	return nil
}

// CleanTitle 取首行，去掉包裹的引号与末尾句号，截断到 80 个字符
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexAny(title, "\r\n"); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(strings.TrimSpace(title), "\"'`“”‘’")
	title = strings.TrimRight(strings.TrimSpace(title), ".。")
	return truncate(strings.TrimSpace(title), maxTitleRunes)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
