package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/entity"
	"doggo-chat-api/internal/wire"
)

const defaultSystemPrompt = "You are Doggo, a friendly and concise assistant. Answer clearly and cite attached documents when you use them."

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	deps, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	if err := deps.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 4. 为本地用户创建默认智能体
	userID := os.Getenv("BOOTSTRAP_USER_ID")
	if userID == "" {
		userID = "local-dev"
	}
	agentName := os.Getenv("BOOTSTRAP_AGENT_NAME")
	if agentName == "" {
		agentName = "Doggo"
	}
	model := cfg.LLM.DefaultModel
	if model == "" {
		model = "sonnet"
	}

	existing, err := deps.Agents.GetByUserAndName(ctx, userID, agentName)
	if err != nil {
		log.Fatalf("failed to check agent existence: %v", err)
	}
	if existing != nil {
		fmt.Printf("Agent %q already exists with ID: %s\n", agentName, existing.ID)
	} else {
		agent := entity.NewAgent(userID, agentName, defaultSystemPrompt, model)
		if err := deps.Agents.Create(ctx, agent); err != nil {
			log.Fatalf("failed to create default agent: %v", err)
		}
		fmt.Printf("Default agent created with ID: %s (user %s)\n", agent.ID, userID)
	}

	fmt.Println("Bootstrap completed successfully.")
}
