// Package storage 提供附件对象存储实现
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/tracer"
)

var storeTracer = otel.Tracer("storage")

// AFSStore 基于 viant/afs 的存储（file:// 用于本地开发，mem:// 用于测试）
type AFSStore struct {
	fs      afs.Service
	baseURL string
}

var _ service.BlobStore = (*AFSStore)(nil)

// NewAFSStore 创建 AFS 存储，baseURL 形如 file:///var/lib/doggo/blobs
func NewAFSStore(baseURL string) (*AFSStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("afs base url is required")
	}
	return &AFSStore{fs: afs.New(), baseURL: baseURL}, nil
}

func (s *AFSStore) objectURL(path string) string {
	return url.Join(s.baseURL, strings.TrimLeft(path, "/"))
}

// Put 写入对象，父目录不存在时创建
func (s *AFSStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	ctx, span := storeTracer.Start(ctx, "storage.AFSStore.Put",
		trace.WithAttributes(
			attribute.String("blob.path", path),
			attribute.String("blob.content_type", contentType),
			attribute.Int("blob.size", len(data)),
		))
	defer span.End()

	dest := s.objectURL(path)
	parent, _ := url.Split(dest, file.Scheme)
	if strings.TrimSpace(parent) != "" {
		exists, err := s.fs.Exists(ctx, parent)
		if err != nil {
			tracer.Fail(span, err)
			return fmt.Errorf("failed to stat blob parent: %w", err)
		}
		if !exists {
			if err := s.fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
				tracer.Fail(span, err)
				return fmt.Errorf("failed to create blob parent: %w", err)
			}
		}
	}
	if err := s.fs.Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("failed to put blob: %w", err)
	}
	return nil
}

// Get 读取对象，不存在时返回 service.ErrBlobNotFound
func (s *AFSStore) Get(ctx context.Context, path string) ([]byte, error) {
	ctx, span := storeTracer.Start(ctx, "storage.AFSStore.Get",
		trace.WithAttributes(attribute.String("blob.path", path)))
	defer span.End()

	src := s.objectURL(path)
	exists, err := s.fs.Exists(ctx, src)
	if err != nil {
		tracer.Fail(span, err)
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", path, service.ErrBlobNotFound)
	}

	data, err := s.fs.DownloadWithURL(ctx, src)
	if err != nil {
		tracer.Fail(span, err)
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}

// Delete 删除对象，不存在视为成功
func (s *AFSStore) Delete(ctx context.Context, path string) error {
	ctx, span := storeTracer.Start(ctx, "storage.AFSStore.Delete",
		trace.WithAttributes(attribute.String("blob.path", path)))
	defer span.End()

	target := s.objectURL(path)
	exists, err := s.fs.Exists(ctx, target)
	if err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("failed to stat blob: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, target); err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// SignedURL 本地存储不支持签名，直接返回对象 URL
func (s *AFSStore) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return s.objectURL(path), nil
}
