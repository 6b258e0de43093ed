//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"doggo-chat-api/internal/application/attachment"
	"doggo-chat-api/internal/application/chat"
	chatctx "doggo-chat-api/internal/application/chat/context"
	"doggo-chat-api/internal/application/quota"
	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/repository"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/internal/infrastructure/collector"
	"doggo-chat-api/internal/infrastructure/llm"
	"doggo-chat-api/internal/infrastructure/messaging"
	"doggo-chat-api/internal/infrastructure/persistence/postgres"
	"doggo-chat-api/internal/infrastructure/persistence/redis"
	"doggo-chat-api/internal/interfaces/http/handler"
	"doggo-chat-api/internal/interfaces/http/middleware"
	"doggo-chat-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		StorageSet,
		LLMSet,
		AttachmentSet,
		ChatSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化用量聚合 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		ProvideRedisClient,
		redis.NewUsageCounter,
		wire.Bind(new(quota.TokenCounter), new(*redis.UsageCounter)),
		quota.NewUsageAggregator,
		ProvideUsageConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 仅初始化 PostgreSQL（用于 bootstrap）
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		postgres.NewAgentRepository,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewAgentRepository,
	postgres.NewConversationRepository,
	postgres.NewConversationTurnRepository,
	postgres.NewAttachmentRepository,
	postgres.NewUsageEventRepository,
	postgres.NewTxManager,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.AgentRepository), new(*postgres.AgentRepository)),
	wire.Bind(new(repository.ConversationRepository), new(*postgres.ConversationRepository)),
	wire.Bind(new(repository.ConversationTurnRepository), new(*postgres.ConversationTurnRepository)),
	wire.Bind(new(repository.AttachmentRepository), new(*postgres.AttachmentRepository)),
	wire.Bind(new(repository.UsageEventRepository), new(*postgres.UsageEventRepository)),
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	ProvideTextCache,
	redis.NewRateLimiter,
	redis.NewUsageCounter,
	wire.Bind(new(service.ExtractedTextCache), new(*redis.TextCache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(quota.DailyTokenReader), new(*redis.UsageCounter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(quota.UsagePublisher), new(*messaging.Producer)),
)

// StorageSet 对象存储与外部采集服务
var StorageSet = wire.NewSet(
	ProvideBlobStore,
	ProvideScrapeClient,
	ProvideSearchClient,
	wire.Bind(new(service.Scraper), new(*collector.ScrapeClient)),
	wire.Bind(new(service.Searcher), new(*collector.SearchClient)),
)

// LLMSet 模型路由与用量
var LLMSet = wire.NewSet(
	ProvideCompleter,
	wire.Bind(new(service.Completer), new(*llm.Router)),
	quota.NewUsageRecorder,
	ProvideQuotaChecker,
	wire.Bind(new(service.UsageRecorder), new(*quota.UsageRecorder)),
	wire.Bind(new(service.QuotaChecker), new(*quota.DailyTokenChecker)),
)

// AttachmentSet 附件规范化、解析与管理
var AttachmentSet = wire.NewSet(
	ProvideNormalizer,
	ProvideResolver,
	ProvideAttachmentService,
	wire.Bind(new(chat.AttachmentResolver), new(*attachment.Resolver)),
)

// ChatSet 对话编排
var ChatSet = wire.NewSet(
	wire.Struct(new(chat.Repositories), "*"),
	ProvideContextBuilder,
	wire.Bind(new(chat.ContextBuilder), new(*chatctx.Builder)),
	ProvideChatService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewChatHandler,
	ProvideAttachmentHandler,
	wire.Bind(new(handler.ChatService), new(*chat.Service)),
	wire.Bind(new(handler.AttachmentService), new(*attachment.Service)),
	ProvideRateKey,
	wire.Struct(new(router.Deps), "*"),
	ProvideRouter,
)
