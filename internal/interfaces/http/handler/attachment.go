package handler

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/interfaces/http/dto"
	"doggo-chat-api/internal/interfaces/http/middleware"
	apperrors "doggo-chat-api/pkg/errors"
)

// AttachmentService 附件用例
type AttachmentService interface {
	Upload(ctx context.Context, in *attachment.UploadInput) (*entity.Attachment, error)
	Scrape(ctx context.Context, owner attachment.Owner, url string) (*entity.Attachment, error)
	Search(ctx context.Context, owner attachment.Owner, query string) (*entity.Attachment, error)
	Get(ctx context.Context, userID, id string) (*entity.Attachment, error)
	ListByConversation(ctx context.Context, userID, conversationID string) ([]*entity.Attachment, error)
	Delete(ctx context.Context, userID, id string) error
	SignedURL(ctx context.Context, userID, id string) (*attachment.SignedURLs, error)
}

// AttachmentHandler 附件处理器
type AttachmentHandler struct {
	attachments AttachmentService
	maxFileSize int64
}

func NewAttachmentHandler(attachments AttachmentService, maxFileSize int64) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, maxFileSize: maxFileSize}
}

// Upload 上传文件
// @Summary 上传附件（图片、PDF、纯文本）
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param conversation_id formData string true "会话 ID"
// @Param file formData file true "文件"
// @Success 201 {object} dto.Response[dto.AttachmentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Failure 415 {object} dto.ErrorResponse
// @Router /api/v1/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "file is required")
		return
	}
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		dto.FromError(c, apperrors.ErrFileTooLarge.WithDetail(fmt.Sprintf("max %d bytes", h.maxFileSize)))
		return
	}

	f, err := fh.Open()
	if err != nil {
		dto.BadRequest(c, "failed to read file")
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		dto.BadRequest(c, "failed to read file")
		return
	}

	att, err := h.attachments.Upload(c.Request.Context(), &attachment.UploadInput{
		Owner:        h.owner(c, c.PostForm("conversation_id")),
		FileName:     fh.Filename,
		DeclaredMIME: fh.Header.Get("Content-Type"),
		Data:         data,
	})
	if err != nil {
		respondError(c, "failed to upload attachment", err)
		return
	}
	dto.Created(c, dto.ToAttachmentResponse(att))
}

// Scrape 抓取网页为附件
// @Summary 抓取网页正文为文本附件
// @Tags Attachments
// @Accept json
// @Produce json
// @Param body body dto.ScrapeRequest true "抓取请求"
// @Success 201 {object} dto.Response[dto.AttachmentResponse]
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/attachments/scrape [post]
func (h *AttachmentHandler) Scrape(c *gin.Context) {
	var req dto.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	att, err := h.attachments.Scrape(c.Request.Context(), h.owner(c, req.ConversationID), req.URL)
	if err != nil {
		respondError(c, "failed to scrape page", err)
		return
	}
	dto.Created(c, dto.ToAttachmentResponse(att))
}

// Search 搜索结果摘要为附件
// @Summary 将搜索结果摘要保存为文本附件
// @Tags Attachments
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "搜索请求"
// @Success 201 {object} dto.Response[dto.AttachmentResponse]
// @Router /api/v1/attachments/search [post]
func (h *AttachmentHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	att, err := h.attachments.Search(c.Request.Context(), h.owner(c, req.ConversationID), req.Query)
	if err != nil {
		respondError(c, "failed to search", err)
		return
	}
	dto.Created(c, dto.ToAttachmentResponse(att))
}

// Get 获取附件信息
// @Router /api/v1/attachments/{id} [get]
func (h *AttachmentHandler) Get(c *gin.Context) {
	att, err := h.attachments.Get(c.Request.Context(), middleware.GetUserID(c), dto.BindAttachmentID(c))
	if err != nil {
		respondError(c, "failed to get attachment", err)
		return
	}
	dto.Success(c, dto.ToAttachmentResponse(att))
}

// SignedURL 获取限时访问地址
// @Router /api/v1/attachments/{id}/url [get]
func (h *AttachmentHandler) SignedURL(c *gin.Context) {
	urls, err := h.attachments.SignedURL(c.Request.Context(), middleware.GetUserID(c), dto.BindAttachmentID(c))
	if err != nil {
		respondError(c, "failed to sign url", err)
		return
	}
	dto.Success(c, dto.ToSignedURLResponse(urls))
}

// Delete 删除附件及其存储对象
// @Router /api/v1/attachments/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	if err := h.attachments.Delete(c.Request.Context(), middleware.GetUserID(c), dto.BindAttachmentID(c)); err != nil {
		respondError(c, "failed to delete attachment", err)
		return
	}
	dto.NoContent(c)
}

// ListByConversation 会话下的附件
// @Router /api/v1/conversations/{cid}/attachments [get]
func (h *AttachmentHandler) ListByConversation(c *gin.Context) {
	items, err := h.attachments.ListByConversation(c.Request.Context(), middleware.GetUserID(c), dto.BindConversationID(c))
	if err != nil {
		respondError(c, "failed to list attachments", err)
		return
	}
	dto.Success(c, dto.ToAttachmentList(items))
}

func (h *AttachmentHandler) owner(c *gin.Context, conversationID string) attachment.Owner {
	return attachment.Owner{UserID: middleware.GetUserID(c), ConversationID: conversationID}
}
