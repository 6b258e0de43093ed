package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"doggo-chat-api/internal/domain/service"
)

// ProviderError 提供商返回的可分类错误
type ProviderError struct {
	Provider   string
	Kind       service.ErrorKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// kindForStatus HTTP 状态码到错误分类
func kindForStatus(status int) service.ErrorKind {
	switch {
	case status == 429 || status == 529:
		return service.ErrorKindRateLimited
	case status == 408 || status == 504:
		return service.ErrorKindTimeout
	default:
		return service.ErrorKindProvider
	}
}

// classifyError 把任意调用错误归类
func classifyError(err error) service.ErrorKind {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return service.ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return service.ErrorKindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return service.ErrorKindTimeout
	}

	// eino 的 OpenAI 适配器只返回包装后的文本错误
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return service.ErrorKindRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return service.ErrorKindTimeout
	default:
		return service.ErrorKindProvider
	}
}
