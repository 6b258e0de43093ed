// Package llm 模型路由与提供商适配
package llm

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/metrics"
	"doggo-chat-api/pkg/tracer"
)

const (
	DefaultTemperature = 1.0
	DefaultMaxTokens   = 4096
	DefaultCallTimeout = 60 * time.Second
)

var routerTracer = otel.Tracer("llm")

// Router 把抽象模型标识路由到唯一的提供商并归一化结果。
// 每次调用恰好调用一个提供商，不跨提供商回退也不重试。
type Router struct {
	table       *RouteTable
	providers   map[string]service.ChatProvider
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

var _ service.Completer = (*Router)(nil)

func NewRouter(llmCfg *config.LLMConfig, chatCfg *config.ChatConfig, providers ...service.ChatProvider) *Router {
	r := &Router{
		table:       NewRouteTable(llmCfg),
		providers:   make(map[string]service.ChatProvider, len(providers)),
		timeout:     llmCfg.Timeout,
		temperature: chatCfg.DefaultTemperature,
		maxTokens:   chatCfg.DefaultMaxTokens,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCallTimeout
	}
	if r.temperature <= 0 {
		r.temperature = DefaultTemperature
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultMaxTokens
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Router) Route(modelID string) service.ModelRoute {
	return r.table.Resolve(modelID)
}

// Complete 单次调用，失败时返回 Success=false 的结果而不是错误
func (r *Router) Complete(ctx context.Context, req *service.UnifiedRequest, modelID string, params service.CompletionParams) *service.CompletionResult {
	route, provider, call, req, failed := r.prepare(ctx, req, modelID, params)
	if failed != nil {
		return failed
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := r.startSpan(ctx, "llm.Router.Complete", route, req)
	defer span.End()

	start := time.Now()
	resp, err := provider.Complete(ctx, req, call)
	return r.finish(ctx, span, route, resp, err, time.Since(start))
}

// Stream 返回事件通道，最后一个事件一定是 done 或 error，之后通道关闭
func (r *Router) Stream(ctx context.Context, req *service.UnifiedRequest, modelID string, params service.CompletionParams) <-chan service.StreamEvent {
	out := make(chan service.StreamEvent, 16)

	route, provider, call, req, failed := r.prepare(ctx, req, modelID, params)
	if failed != nil {
		out <- service.StreamEvent{Type: service.StreamEventError, Result: failed}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		ctx, span := r.startSpan(ctx, "llm.Router.Stream", route, req)
		defer span.End()

		start := time.Now()
		resp, err := provider.Stream(ctx, req, call, func(delta string) {
			select {
			case out <- service.StreamEvent{Type: service.StreamEventDelta, Delta: delta}:
			case <-ctx.Done():
			}
		})
		result := r.finish(ctx, span, route, resp, err, time.Since(start))

		evType := service.StreamEventDone
		if !result.Success {
			evType = service.StreamEventError
		}
		// 终止事件必须送达，通道有缓冲且调用方负责读完
		out <- service.StreamEvent{Type: evType, Result: result}
	}()
	return out
}

func (r *Router) prepare(ctx context.Context, req *service.UnifiedRequest, modelID string, params service.CompletionParams) (service.ModelRoute, service.ChatProvider, service.ProviderCall, *service.UnifiedRequest, *service.CompletionResult) {
	route := r.table.Resolve(modelID)
	if route.Fallback {
		logger.Warn(ctx, "unknown model id, using default route", "requested", modelID, "model", route.Alias)
	}

	call := service.ProviderCall{Model: route.ModelID, Temperature: r.temperature, MaxTokens: r.maxTokens}
	if params.Temperature != nil {
		call.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		call.MaxTokens = *params.MaxTokens
	}

	provider, ok := r.providers[route.Provider]
	if !ok {
		res := failedResult(route, service.ErrorKindNotConfigured, "provider "+route.Provider+" is not configured", 0)
		metrics.LLMCallTotal.WithLabelValues(route.Provider, route.ModelID, string(res.ErrorKind)).Inc()
		logger.Error(ctx, "no provider for route", nil, "provider", route.Provider, "model", route.ModelID)
		return route, nil, call, req, res
	}

	if !route.SupportsVision {
		if n := req.ImageCount(); n > 0 {
			logger.Warn(ctx, "model does not support images, dropping image blocks", "model", route.Alias, "images", n)
			metrics.LLMImagesDropped.WithLabelValues(route.Alias).Add(float64(n))
			req = req.WithoutImages()
		}
	}
	return route, provider, call, req, nil
}

func (r *Router) startSpan(ctx context.Context, name string, route service.ModelRoute, req *service.UnifiedRequest) (context.Context, trace.Span) {
	ctx = service.WithProvider(ctx, route.Provider)
	return routerTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.alias", route.Alias),
		attribute.String("llm.provider", route.Provider),
		attribute.String("llm.model", route.ModelID),
		attribute.String("llm.purpose", service.PurposeFromContext(ctx)),
		attribute.Int("llm.turns", len(req.Turns)),
		attribute.Int("llm.images", req.ImageCount()),
	))
}

func (r *Router) finish(ctx context.Context, span trace.Span, route service.ModelRoute, resp *service.ProviderResponse, err error, latency time.Duration) *service.CompletionResult {
	metrics.LLMCallDuration.WithLabelValues(route.Provider, route.ModelID).Observe(latency.Seconds())

	var result *service.CompletionResult
	switch {
	case err != nil:
		result = failedResult(route, classifyError(err), err.Error(), latency)
	case resp == nil || strings.TrimSpace(resp.Content) == "":
		result = failedResult(route, service.ErrorKindMalformedResponse, "provider returned no content", latency)
	default:
		model := resp.Model
		if model == "" {
			model = route.ModelID
		}
		result = &service.CompletionResult{
			Success:  true,
			Content:  resp.Content,
			Usage:    resp.Usage,
			Model:    model,
			Provider: route.Provider,
			Alias:    route.Alias,
			Latency:  latency,
		}
		metrics.LLMTokensUsed.WithLabelValues(route.Provider, route.ModelID, "input").Add(float64(resp.Usage.InputTokens))
		metrics.LLMTokensUsed.WithLabelValues(route.Provider, route.ModelID, "output").Add(float64(resp.Usage.OutputTokens))
	}

	if result.Success {
		metrics.LLMCallTotal.WithLabelValues(route.Provider, route.ModelID, "success").Inc()
		span.SetAttributes(
			attribute.Int("llm.input_tokens", result.Usage.InputTokens),
			attribute.Int("llm.output_tokens", result.Usage.OutputTokens),
		)
		logger.Info(ctx, "llm call completed",
			"provider", route.Provider,
			"model", result.Model,
			"input_tokens", result.Usage.InputTokens,
			"output_tokens", result.Usage.OutputTokens,
			"latency_ms", latency.Milliseconds(),
		)
		return result
	}

	metrics.LLMCallTotal.WithLabelValues(route.Provider, route.ModelID, string(result.ErrorKind)).Inc()
	span.SetAttributes(attribute.String("llm.error_kind", string(result.ErrorKind)))
	if err != nil {
		tracer.Fail(span, err)
	}
	logger.Error(ctx, "llm call failed", err,
		"provider", route.Provider,
		"model", route.ModelID,
		"error_kind", result.ErrorKind,
		"latency_ms", latency.Milliseconds(),
	)
	return result
}

func failedResult(route service.ModelRoute, kind service.ErrorKind, msg string, latency time.Duration) *service.CompletionResult {
	return &service.CompletionResult{
		Success:   false,
		Model:     route.ModelID,
		Provider:  route.Provider,
		Alias:     route.Alias,
		Latency:   latency,
		ErrorKind: kind,
		Error:     msg,
	}
}
