package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
)

// EinoFactory 按提供商缓存 Eino ChatModel 客户端，具体模型在调用时指定
type EinoFactory struct {
	providers map[string]config.ProviderConfig
	models    map[string]model.BaseChatModel
	mu        sync.RWMutex
}

func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		providers: cfg.Providers,
		models:    make(map[string]model.BaseChatModel),
	}
}

// Configured 提供商是否配置了 API Key
func (f *EinoFactory) Configured(name string) bool {
	p, ok := f.providers[name]
	return ok && p.APIKey != ""
}

// Get 获取提供商对应的 ChatModel（惰性创建）
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.providers[name]
	if !ok || providerCfg.APIKey == "" {
		return nil, &ProviderError{Provider: name, Kind: service.ErrorKindNotConfigured, Message: "provider is not configured"}
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		// 实际模型由每次调用的 model.WithModel 指定
		Model:   defaultRoutes["gpt-4o-mini"].ModelID,
		Timeout: providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}
