package router

import (
	"github.com/gin-gonic/gin"

	"doggo-chat-api/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, chatHandler *handler.ChatHandler, attachmentHandler *handler.AttachmentHandler) {
	conversations := v1.Group("/conversations")
	{
		conversations.POST("/messages", chatHandler.SendMessage)
		conversations.POST("/messages/stream", chatHandler.StreamMessage)
		conversations.GET("/:cid/messages", chatHandler.ListMessages)
		conversations.GET("/:cid/attachments", attachmentHandler.ListByConversation)
	}

	attachments := v1.Group("/attachments")
	{
		attachments.POST("", attachmentHandler.Upload)
		attachments.POST("/scrape", attachmentHandler.Scrape)
		attachments.POST("/search", attachmentHandler.Search)
		attachments.GET("/:id", attachmentHandler.Get)
		attachments.GET("/:id/url", attachmentHandler.SignedURL)
		attachments.DELETE("/:id", attachmentHandler.Delete)
	}
}
