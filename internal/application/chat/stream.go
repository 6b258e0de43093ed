package chat

import (
	"context"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
)

// StreamEvent 对外的流式事件。终止事件（done/error）携带 Output 或 Err。
type StreamEvent struct {
	Type   service.StreamEventType
	Delta  string
	Output *SendOutput
	Err    error
}

// StreamSession 已完成准备阶段的流式会话
type StreamSession struct {
	Conversation *entity.Conversation
	UserTurn     *entity.ConversationTurn
	Skipped      []attachment.SkippedAttachment
	Events       <-chan StreamEvent
}

// Stream 流式发言。准备阶段的错误同步返回；之后的提供商失败通过终止事件返回，
// 无论客户端是否断开，都会写入恰好一条助手轮次。
func (s *Service) Stream(ctx context.Context, in *SendInput) (*StreamSession, error) {
	tc, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	upstream := s.completer.Stream(service.WithPurpose(ctx, purposeChat), tc.request, tc.agent.Model, params(tc.agent))
	out := make(chan StreamEvent, 16)

	go func() {
		defer close(out)
		// 上游通道必须读到终止事件为止
		for ev := range upstream {
			if ev.Type == service.StreamEventDelta {
				select {
				case out <- StreamEvent{Type: ev.Type, Delta: ev.Delta}:
				case <-ctx.Done():
				}
				continue
			}

			result := ev.Result
			if result == nil {
				result = &service.CompletionResult{ErrorKind: service.ErrorKindMalformedResponse, Error: "stream ended without result"}
			}
			output, ferr := s.finalize(ctx, tc, result)
			terminal := StreamEvent{Type: ev.Type, Output: output, Err: ferr}
			if ferr != nil {
				terminal.Type = service.StreamEventError
			}
			select {
			case out <- terminal:
			case <-ctx.Done():
				logger.Debug(ctx, "client left before stream terminal event", "event", string(terminal.Type))
			}
			return
		}
	}()

	return &StreamSession{
		Conversation: tc.conversation,
		UserTurn:     tc.userTurn,
		Skipped:      tc.skipped,
		Events:       out,
	}, nil
}
