package wire

import (
	"context"
	"fmt"
	"os"

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
	"doggo-chat-api/internal/infrastructure/storage"
	"doggo-chat-api/internal/interfaces/http/handler"
	"doggo-chat-api/internal/interfaces/http/middleware"
	"doggo-chat-api/internal/interfaces/http/router"
	"doggo-chat-api/pkg/logger"
)

// App API 网关依赖容器
type App struct {
	Router *router.Router
	Chat   *chat.Service
}

// Worker 用量聚合 worker 依赖容器
type Worker struct {
	Consumer   *messaging.Consumer
	Aggregator *quota.UsageAggregator
}

// Bootstrap 初始化脚本依赖容器
type Bootstrap struct {
	PgClient *postgres.Client
	Agents   *postgres.AgentRepository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideTextCache(client *redis.Client, cfg *config.Config) *redis.TextCache {
	return redis.NewTextCache(client, cfg.Attachments.ExtractedTextCacheTTL)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideUsageConsumer 用量事件消费者，消息解码后交给聚合器
func ProvideUsageConsumer(redisClient *redis.Client, aggregator *quota.UsageAggregator, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamUsageEvents,
		Group:         messaging.ConsumerGroupQuotaAggregator,
		ConsumerName:  consumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.MessageTypeUsageRecorded, func(ctx context.Context, msg *messaging.Message) error {
		var evt messaging.UsageEventMessage
		if err := msg.UnmarshalPayload(&evt); err != nil {
			return err
		}
		return aggregator.Apply(ctx, evt.UserID, evt.OccurredAt, evt.TotalTokens())
	})
	return consumer
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// ProvideBlobStore 按配置选择对象存储
func ProvideBlobStore(ctx context.Context, cfg *config.Config) (service.BlobStore, error) {
	return storage.New(ctx, &cfg.Storage)
}

func ProvideScrapeClient(cfg *config.Config) *collector.ScrapeClient {
	return collector.NewScrapeClient(&cfg.Collectors.Scraper)
}

func ProvideSearchClient(cfg *config.Config) *collector.SearchClient {
	return collector.NewSearchClient(&cfg.Collectors.Search)
}

// ProvideCompleter 注册全部提供商并构建模型路由
func ProvideCompleter(cfg *config.Config) *llm.Router {
	factory := llm.NewEinoFactory(&cfg.LLM)
	providers := []service.ChatProvider{llm.NewOpenAIProvider(factory)}
	if pc, ok := cfg.LLM.Providers["anthropic"]; ok {
		providers = append(providers, llm.NewAnthropicProvider(pc))
	} else {
		logger.Warn(context.Background(), "anthropic provider not configured")
	}
	return llm.NewRouter(&cfg.LLM, &cfg.Chat, providers...)
}

func ProvideQuotaChecker(counter quota.DailyTokenReader, repo repository.UsageEventRepository, cfg *config.Config) *quota.DailyTokenChecker {
	return quota.NewDailyTokenChecker(counter, repo, cfg.Quota.DailyTokenLimit)
}

func ProvideNormalizer(repo repository.AttachmentRepository, store service.BlobStore, cfg *config.Config) *attachment.Normalizer {
	return attachment.NewNormalizer(repo, store, &cfg.Attachments)
}

func ProvideResolver(repo repository.AttachmentRepository, store service.BlobStore, cache service.ExtractedTextCache, cfg *config.Config) *attachment.Resolver {
	return attachment.NewResolver(repo, store, cache, &cfg.Attachments)
}

func ProvideAttachmentService(
	normalizer *attachment.Normalizer,
	repo repository.AttachmentRepository,
	store service.BlobStore,
	scraper service.Scraper,
	searcher service.Searcher,
	cfg *config.Config,
) *attachment.Service {
	return attachment.NewService(normalizer, repo, store, scraper, searcher, cfg.Storage.SignedURLTTL)
}

func ProvideContextBuilder(store service.BlobStore, cfg *config.Config) *chatctx.Builder {
	return chatctx.NewBuilder(store, cfg.Chat.HistoryLimit, cfg.Attachments.FetchTimeout, cfg.Attachments.FetchConcurrency)
}

func ProvideChatService(
	repos chat.Repositories,
	resolver chat.AttachmentResolver,
	builder chat.ContextBuilder,
	completer service.Completer,
	usage service.UsageRecorder,
	checker service.QuotaChecker,
	cfg *config.Config,
) *chat.Service {
	return chat.NewService(repos, resolver, builder, completer, usage, checker, &cfg.Chat)
}

// ProvideHealthHandler 就绪检查覆盖 PostgreSQL 与 Redis
func ProvideHealthHandler(pg *postgres.Client, rdb *redis.Client, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rdb,
	})
}

func ProvideAttachmentHandler(svc handler.AttachmentService, cfg *config.Config) *handler.AttachmentHandler {
	return handler.NewAttachmentHandler(svc, cfg.Attachments.MaxFileSize)
}

func ProvideRateKey() middleware.KeyFunc {
	return redis.BuildUserRateLimitKey
}

func ProvideRouter(cfg *config.Config, deps *router.Deps) *router.Router {
	return router.New(cfg, deps)
}
