package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/tracer"
)

const defaultMaxResults = 5

// ErrSearchNotConfigured 未配置搜索服务
var ErrSearchNotConfigured = errors.New("search service is not configured")

// SearchClient 调用外部搜索服务（Tavily 风格接口）
type SearchClient struct {
	endpoint   string
	apiKey     string
	maxResults int
	client     *http.Client
}

var _ service.Searcher = (*SearchClient)(nil)

func NewSearchClient(cfg *config.CollectorConfig) *SearchClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &SearchClient{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *SearchClient) Search(ctx context.Context, query string) ([]service.SearchResult, error) {
	ctx, span := collectorTracer.Start(ctx, "collector.Search")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", query))

	if c.endpoint == "" {
		tracer.Fail(span, ErrSearchNotConfigured)
		return nil, ErrSearchNotConfigured
	}

	payload, err := json.Marshal(map[string]any{"query": query, "max_results": c.maxResults})
	if err != nil {
		return nil, err
	}
	body, err := postJSON(ctx, c.client, c.endpoint, c.apiKey, payload)
	if err != nil {
		err = fmt.Errorf("search %q: %w", query, err)
		tracer.Fail(span, err)
		return nil, err
	}

	results := parseResults(gjson.ParseBytes(body), c.maxResults)
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// parseResults 兼容 results / organic / data 三种数组字段，snippet 缺省取 content
func parseResults(doc gjson.Result, limit int) []service.SearchResult {
	var items gjson.Result
	for _, path := range []string{"results", "organic", "data"} {
		if v := doc.Get(path); v.IsArray() {
			items = v
			break
		}
	}

	out := make([]service.SearchResult, 0, limit)
	items.ForEach(func(_, item gjson.Result) bool {
		r := service.SearchResult{
			Title:   strings.TrimSpace(firstString(item, "title", "name")),
			URL:     strings.TrimSpace(firstString(item, "url", "link")),
			Snippet: collapseSpace(firstString(item, "snippet", "content", "description")),
		}
		if r.URL == "" && r.Title == "" {
			return true
		}
		out = append(out, r)
		return len(out) < limit
	})
	return out
}
