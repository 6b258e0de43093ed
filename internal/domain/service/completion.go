package service

import (
	"encoding/base64"
	"strings"
	"time"

	"doggo-chat-api/internal/domain/entity"
)

// BlockType 内容块类型
type BlockType string

const (
	BlockTypeText  BlockType = "text"
	BlockTypeImage BlockType = "image"
)

// ImagePayload 内联图片字节。视觉模型要求直接携带字节，不接受引用。
type ImagePayload struct {
	MediaType string
	Data      []byte
}

// Base64 标准 base64 编码
func (p *ImagePayload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL data:{mime};base64,{data}
func (p *ImagePayload) DataURL() string {
	return "data:" + p.MediaType + ";base64," + p.Base64()
}

// ContentBlock 一个类型化内容块（text | image）
type ContentBlock struct {
	Type  BlockType
	Text  string
	Image *ImagePayload
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func ImageBlock(mediaType string, data []byte) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Image: &ImagePayload{MediaType: mediaType, Data: data}}
}

// Turn 带角色的一轮输入
type Turn struct {
	Role   entity.Role
	Blocks []ContentBlock
}

// Text 拼接全部文本块
func (t Turn) Text() string {
	var sb strings.Builder
	for _, b := range t.Blocks {
		if b.Type == BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ImageCount 图片块数量
func (t Turn) ImageCount() int {
	n := 0
	for _, b := range t.Blocks {
		if b.Type == BlockTypeImage {
			n++
		}
	}
	return n
}

// UnifiedRequest 与提供商无关的请求：系统提示词 + 按顺序排列的轮次
type UnifiedRequest struct {
	System string
	Turns  []Turn
}

// ImageCount 请求中的图片块总数
func (r *UnifiedRequest) ImageCount() int {
	n := 0
	for _, t := range r.Turns {
		n += t.ImageCount()
	}
	return n
}

// WithoutImages 返回去除所有图片块的副本；去除后为空的轮次被整体移除
func (r *UnifiedRequest) WithoutImages() *UnifiedRequest {
	out := &UnifiedRequest{System: r.System, Turns: make([]Turn, 0, len(r.Turns))}
	for _, t := range r.Turns {
		blocks := make([]ContentBlock, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			if b.Type != BlockTypeImage {
				blocks = append(blocks, b)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out.Turns = append(out.Turns, Turn{Role: t.Role, Blocks: blocks})
	}
	return out
}

// CompletionParams 调用方给出的生成参数，nil 表示使用默认值
type CompletionParams struct {
	Temperature *float64
	MaxTokens   *int
}

// ProviderCall 传给具体提供商的已解析参数
type ProviderCall struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// TokenUsage 提供商上报的 token 数
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ProviderResponse 适配器返回的原始结果
type ProviderResponse struct {
	Content    string
	Usage      TokenUsage
	Model      string
	StopReason string
}

// ErrorKind 失败分类
type ErrorKind string

const (
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindProvider          ErrorKind = "provider_error"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
	ErrorKindCanceled          ErrorKind = "canceled"
	ErrorKindNotConfigured     ErrorKind = "not_configured"
)

// CompletionResult 一次调用的归一化结果。失败时 Success=false，不携带可计费 token。
type CompletionResult struct {
	Success   bool          `json:"success"`
	Content   string        `json:"content,omitempty"`
	Usage     TokenUsage    `json:"usage"`
	Model     string        `json:"model"`
	Provider  string        `json:"provider"`
	Alias     string        `json:"alias"`
	Latency   time.Duration `json:"-"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Billable 仅成功且有 token 的结果可计费
func (r *CompletionResult) Billable() bool {
	return r != nil && r.Success && r.Usage.Total() > 0
}

// StreamEventType 流式事件类型
type StreamEventType string

const (
	StreamEventDelta StreamEventType = "delta"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent 流式输出事件；done/error 为终止事件并携带最终结果
type StreamEvent struct {
	Type   StreamEventType
	Delta  string
	Result *CompletionResult
}
