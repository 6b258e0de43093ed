// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"doggo-chat-api/internal/application/chat"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/internal/interfaces/http/dto"
	"doggo-chat-api/internal/interfaces/http/middleware"
	apperrors "doggo-chat-api/pkg/errors"
	"doggo-chat-api/pkg/logger"
)

// ChatService 对话用例
type ChatService interface {
	Send(ctx context.Context, in *chat.SendInput) (*chat.SendOutput, error)
	Stream(ctx context.Context, in *chat.SendInput) (*chat.StreamSession, error)
	ListMessages(ctx context.Context, userID, conversationID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationTurn], error)
}

// ChatHandler 对话处理器
type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// SendMessage 发送消息
// @Summary 发送消息并获取回复
// @Tags Conversations
// @Accept json
// @Produce json
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 {object} dto.Response[dto.SendMessageResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/v1/conversations/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	req, ok := bindSendRequest(c)
	if !ok {
		return
	}

	out, err := h.chat.Send(c.Request.Context(), req.ToInput(middleware.GetUserID(c)))
	if err != nil {
		respondError(c, "failed to send message", err)
		return
	}
	dto.Success(c, dto.ToSendMessageResponse(out))
}

// StreamMessage 流式发送消息
// @Summary 发送消息并以 SSE 返回回复
// @Description 事件依次为 start、若干 delta，最后是 done 或 error
// @Tags Conversations
// @Accept json
// @Produce text/event-stream
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 "SSE stream"
// @Router /api/v1/conversations/messages/stream [post]
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	req, ok := bindSendRequest(c)
	if !ok {
		return
	}

	sess, err := h.chat.Stream(c.Request.Context(), req.ToInput(middleware.GetUserID(c)))
	if err != nil {
		respondError(c, "failed to start stream", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("start", dto.StreamStartResponse{
		ConversationID:     sess.Conversation.ID,
		UserMessage:        dto.ToMessageResponse(sess.UserTurn),
		SkippedAttachments: dto.ToSkipped(sess.Skipped),
	})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, open := <-sess.Events:
			if !open {
				return false
			}
			switch ev.Type {
			case service.StreamEventDelta:
				c.SSEvent("delta", dto.StreamDeltaResponse{Text: ev.Delta})
				return true
			default:
				writeTerminal(c, ev)
				return false
			}
		case <-c.Request.Context().Done():
			// 服务端仍会读完上游并落库
			return false
		}
	})
}

func writeTerminal(c *gin.Context, ev chat.StreamEvent) {
	if ev.Output == nil {
		msg := "failed to save reply"
		if ev.Err != nil {
			logger.Error(c.Request.Context(), "stream finalize failed", ev.Err)
		}
		c.SSEvent("error", gin.H{"message": msg})
		return
	}
	resp := dto.ToSendMessageResponse(ev.Output)
	if ev.Type == service.StreamEventDone {
		c.SSEvent("done", resp)
		return
	}
	c.SSEvent("error", gin.H{
		"message":           resp.AssistantMessage.Content,
		"error_kind":        string(ev.Output.Result.ErrorKind),
		"assistant_message": resp.AssistantMessage,
	})
}

// ListMessages 分页获取会话消息
// @Summary 获取会话消息
// @Tags Conversations
// @Produce json
// @Param cid path string true "会话 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.MessageResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/conversations/{cid}/messages [get]
func (h *ChatHandler) ListMessages(c *gin.Context) {
	page := dto.BindPage(c)
	result, err := h.chat.ListMessages(c.Request.Context(), middleware.GetUserID(c), dto.BindConversationID(c), page.Pagination())
	if err != nil {
		respondError(c, "failed to list messages", err)
		return
	}
	dto.SuccessWithPage(c, dto.ToMessageList(result.Items), dto.NewPageMeta(result.Page, result.PageSize, result.Total))
}

func bindSendRequest(c *gin.Context) (*dto.SendMessageRequest, bool) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			dto.BadRequest(c, "request body is required")
		} else {
			dto.BadRequest(c, "invalid request body: "+err.Error())
		}
		return nil, false
	}
	return &req, true
}

// respondError AppError 按其状态码返回，其他错误记录日志后返回 500
func respondError(c *gin.Context, msg string, err error) {
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), msg, err)
		}
		dto.FromError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
