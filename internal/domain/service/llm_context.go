package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyPurpose  llmCtxKey = "llm_purpose"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

// WithPurpose 标记调用用途（chat / title），用于链路属性
func WithPurpose(ctx context.Context, purpose string) context.Context {
	p := strings.TrimSpace(purpose)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyPurpose, p)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func PurposeFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyPurpose)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
