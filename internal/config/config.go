// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Chat          ChatConfig          `yaml:"chat" mapstructure:"chat"`
	Attachments   AttachmentsConfig   `yaml:"attachments" mapstructure:"attachments"`
	Collectors    CollectorsConfig    `yaml:"collectors" mapstructure:"collectors"`
	Quota         QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxBodyBytes 请求体上限，需大于附件上限以便返回明确的 413
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	// Driver 存储驱动：r2 | afs
	Driver       string        `yaml:"driver" mapstructure:"driver"`
	R2           R2Config      `yaml:"r2" mapstructure:"r2"`
	AFS          AFSConfig     `yaml:"afs" mapstructure:"afs"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl" mapstructure:"signed_url_ttl"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// R2Config Cloudflare R2 配置
type R2Config struct {
	AccountID       string `yaml:"account_id" mapstructure:"account_id"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	// Endpoint 为空时按 AccountID 推导 R2 endpoint
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
}

// AFSConfig 抽象文件系统配置（本地开发 file://，测试 mem://）
type AFSConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// DefaultModel 未知模型标识回退到的抽象模型
	DefaultModel string                    `yaml:"default_model" mapstructure:"default_model"`
	Timeout      time.Duration             `yaml:"timeout" mapstructure:"timeout"`
	Providers    map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// Models 覆盖或扩展内置路由表，键为抽象模型标识
	Models map[string]ModelConfig `yaml:"models" mapstructure:"models"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Version Anthropic API 版本头
	Version string `yaml:"version" mapstructure:"version"`
}

// ModelConfig 路由表条目
type ModelConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	ModelID         string  `yaml:"model_id" mapstructure:"model_id"`
	SupportsVision  bool    `yaml:"supports_vision" mapstructure:"supports_vision"`
	InputCostPer1K  float64 `yaml:"input_cost_per_1k" mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k" mapstructure:"output_cost_per_1k"`
}

// ChatConfig 对话管线配置
type ChatConfig struct {
	HistoryLimit       int           `yaml:"history_limit" mapstructure:"history_limit"`
	DefaultTemperature float64       `yaml:"default_temperature" mapstructure:"default_temperature"`
	DefaultMaxTokens   int           `yaml:"default_max_tokens" mapstructure:"default_max_tokens"`
	MaxAttachments     int           `yaml:"max_attachments" mapstructure:"max_attachments"`
	TitleModel         string        `yaml:"title_model" mapstructure:"title_model"`
	TitleTimeout       time.Duration `yaml:"title_timeout" mapstructure:"title_timeout"`
	UsageTimeout       time.Duration `yaml:"usage_timeout" mapstructure:"usage_timeout"`
}

// AttachmentsConfig 附件处理配置
type AttachmentsConfig struct {
	MaxFileSize           int64         `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxImageDimension     int           `yaml:"max_image_dimension" mapstructure:"max_image_dimension"`
	ImageQuality          int           `yaml:"image_quality" mapstructure:"image_quality"`
	ThumbnailSize         int           `yaml:"thumbnail_size" mapstructure:"thumbnail_size"`
	ThumbnailQuality      int           `yaml:"thumbnail_quality" mapstructure:"thumbnail_quality"`
	FetchTimeout          time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	FetchConcurrency      int           `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	ExtractedTextCacheTTL time.Duration `yaml:"extracted_text_cache_ttl" mapstructure:"extracted_text_cache_ttl"`
	MaxExtractedRunes     int           `yaml:"max_extracted_runes" mapstructure:"max_extracted_runes"`
}

// CollectorsConfig 抓取/搜索服务配置
type CollectorsConfig struct {
	Scraper CollectorConfig `yaml:"scraper" mapstructure:"scraper"`
	Search  CollectorConfig `yaml:"search" mapstructure:"search"`
}

// CollectorConfig 单个外部采集服务
type CollectorConfig struct {
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResults int           `yaml:"max_results" mapstructure:"max_results"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	// DailyTokenLimit 每用户每日 token 上限，0 表示不限制
	DailyTokenLimit int64 `yaml:"daily_token_limit" mapstructure:"daily_token_limit"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	UserHeader string          `yaml:"user_header" mapstructure:"user_header"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS       CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置（滑动窗口）
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
