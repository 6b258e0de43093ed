// Package storage 提供附件对象存储实现
package storage

import (
	"context"
	"fmt"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
)

// New 按配置选择存储驱动
func New(ctx context.Context, cfg *config.StorageConfig) (service.BlobStore, error) {
	switch cfg.Driver {
	case "r2", "s3":
		return NewS3Store(ctx, &cfg.R2)
	case "afs", "":
		return NewAFSStore(cfg.AFS.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
