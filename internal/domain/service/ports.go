package service

import (
	"context"
	"errors"
	"time"

	"doggo-chat-api/internal/domain/entity"
)

// ErrBlobNotFound 存储中不存在该对象
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 对象存储。路径约定 {userId}/{conversationId}/{category}/{safeFilename}
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// ChatProvider 单个模型提供商适配器，负责把 UnifiedRequest 翻译成原生请求
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req *UnifiedRequest, call ProviderCall) (*ProviderResponse, error)
	// Stream 每个增量同步回调 onDelta，结束后返回完整结果
	Stream(ctx context.Context, req *UnifiedRequest, call ProviderCall, onDelta func(string)) (*ProviderResponse, error)
}

// ModelRoute 抽象模型标识解析结果
type ModelRoute struct {
	Alias           string
	Provider        string
	ModelID         string
	SupportsVision  bool
	InputCostPer1K  float64
	OutputCostPer1K float64
	// Fallback 请求的标识未知，使用了默认路由
	Fallback bool
}

// CostUSD 按每千 token 单价计算费用
func (r ModelRoute) CostUSD(u TokenUsage) float64 {
	return float64(u.InputTokens)/1000*r.InputCostPer1K + float64(u.OutputTokens)/1000*r.OutputCostPer1K
}

// Completer 模型路由器契约：每次调用恰好调用一个提供商，不重试不回退
type Completer interface {
	Route(modelID string) ModelRoute
	Complete(ctx context.Context, req *UnifiedRequest, modelID string, params CompletionParams) *CompletionResult
	Stream(ctx context.Context, req *UnifiedRequest, modelID string, params CompletionParams) <-chan StreamEvent
}

// TextLoader 提取文本的加载函数
type TextLoader func(ctx context.Context) (string, error)

// ExtractedTextCache 缓存惰性提取出的文本（附件不可变，只缓存不回写）
type ExtractedTextCache interface {
	GetOrLoad(ctx context.Context, attachmentID string, load TextLoader) (string, error)
}

// UsageInput 一次完成调用的计费输入
type UsageInput struct {
	UserID         string
	AgentID        string
	ConversationID string
	EventType      entity.UsageEventType
	Result         *CompletionResult
}

// UsageRecorder 记录用量。实现为 best-effort，失败不影响已返回给用户的结果。
type UsageRecorder interface {
	Record(ctx context.Context, in UsageInput) (*entity.UsageEvent, error)
}

// QuotaChecker 调用模型前的配额检查
type QuotaChecker interface {
	Check(ctx context.Context, userID string) error
}

// ScrapedPage 抓取服务返回的页面文本
type ScrapedPage struct {
	URL      string
	Title    string
	Markdown string
}

// SearchResult 搜索服务返回的一条结果
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Scraper 网页抓取协作方
type Scraper interface {
	Scrape(ctx context.Context, url string) (*ScrapedPage, error)
}

// Searcher 网络搜索协作方
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
