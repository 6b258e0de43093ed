// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/interfaces/http/handler"
	"doggo-chat-api/internal/interfaces/http/middleware"
)

// Deps 路由依赖
type Deps struct {
	Health     *handler.HealthHandler
	Chat       *handler.ChatHandler
	Attachment *handler.AttachmentHandler

	Limiter middleware.RateLimiter
	RateKey middleware.KeyFunc
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   *Deps
}

// New 创建新的路由器
func New(cfg *config.Config, deps *Deps) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20

	r := &Router{engine: engine, cfg: cfg, deps: deps}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
	r.engine.Use(middleware.BodyLimit(r.cfg.Server.HTTP.MaxBodyBytes))
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.deps.Health.Health)
	r.engine.GET("/ready", r.deps.Health.Ready)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	rateKey := r.deps.RateKey
	if rateKey == nil {
		rateKey = func(userID, route string) string { return "ratelimit:" + userID + ":" + route }
	}

	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.UserContext(r.cfg.Security.UserHeader))
	v1.Use(middleware.RateLimit(r.cfg.Security.RateLimit, r.deps.Limiter, rateKey))
	RegisterV1Routes(v1, r.deps.Chat, r.deps.Attachment)
}
