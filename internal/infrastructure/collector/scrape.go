// Package collector 网页抓取与搜索服务客户端
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
	"doggo-chat-api/pkg/logger"
	"doggo-chat-api/pkg/tracer"
)

var collectorTracer = otel.Tracer("collector")

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "DoggoChat/1.0 (+page fetcher)"
	maxBodyBytes     = 5 << 20
)

// ScrapeClient 抓取网页正文。配置了抓取服务时走服务，否则直接请求页面并用 goquery 提取文本。
type ScrapeClient struct {
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
}

var _ service.Scraper = (*ScrapeClient)(nil)

func NewScrapeClient(cfg *config.CollectorConfig) *ScrapeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &ScrapeClient{
		endpoint:  strings.TrimSpace(cfg.Endpoint),
		apiKey:    cfg.APIKey,
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *ScrapeClient) Scrape(ctx context.Context, pageURL string) (*service.ScrapedPage, error) {
	ctx, span := collectorTracer.Start(ctx, "collector.Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("scrape.url", pageURL), attribute.Bool("scrape.remote", c.endpoint != ""))

	var (
		page *service.ScrapedPage
		err  error
	)
	if c.endpoint != "" {
		page, err = c.scrapeRemote(ctx, pageURL)
	} else {
		page, err = c.scrapeDirect(ctx, pageURL)
	}
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}
	if strings.TrimSpace(page.Markdown) == "" {
		err = fmt.Errorf("scrape %s: page has no readable text", pageURL)
		tracer.Fail(span, err)
		return nil, err
	}
	logger.Debug(ctx, "page scraped", "url", page.URL, "chars", len(page.Markdown))
	return page, nil
}

// scrapeRemote 调用抓取服务，兼容 {data:{markdown,metadata}} 与扁平结构
func (c *ScrapeClient) scrapeRemote(ctx context.Context, pageURL string) (*service.ScrapedPage, error) {
	payload, err := json.Marshal(map[string]any{"url": pageURL, "formats": []string{"markdown"}})
	if err != nil {
		return nil, err
	}
	body, err := postJSON(ctx, c.client, c.endpoint, c.apiKey, payload)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, err)
	}

	doc := gjson.ParseBytes(body)
	if ok := doc.Get("success"); ok.Exists() && !ok.Bool() {
		return nil, fmt.Errorf("scrape %s: %s", pageURL, firstString(doc, "error", "message"))
	}
	page := &service.ScrapedPage{
		URL:      firstString(doc, "data.metadata.sourceURL", "data.url", "url"),
		Title:    firstString(doc, "data.metadata.title", "data.title", "title"),
		Markdown: firstString(doc, "data.markdown", "markdown", "content"),
	}
	if page.URL == "" {
		page.URL = pageURL
	}
	return page, nil
}

func (c *ScrapeClient) scrapeDirect(ctx context.Context, pageURL string) (*service.ScrapedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return &service.ScrapedPage{URL: finalURL, Markdown: strings.TrimSpace(string(body))}, nil
	}

	title, text, err := htmlToText(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return &service.ScrapedPage{URL: finalURL, Title: title, Markdown: text}, nil
}

// htmlToText 提取标题、各级标题、段落与列表，输出近似 markdown
func htmlToText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, noscript, nav, footer, header, aside, iframe, form").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var b strings.Builder
	seen := make(map[string]struct{})
	write := func(line string) {
		if _, dup := seen[line]; dup {
			return
		}
		seen[line] = struct{}{}
		b.WriteString(line)
		b.WriteString("\n\n")
	}

	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			write(strings.Repeat("#", int(tag[1]-'0')) + " " + text)
		case "li":
			write("- " + text)
		case "pre":
			write("```\n" + strings.TrimSpace(s.Text()) + "\n```")
		case "blockquote":
			write("> " + text)
		default:
			write(text)
		}
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		text = collapseSpace(doc.Find("body").Text())
	}
	return title, text, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && strings.TrimSpace(v.String()) != "" {
			return v.String()
		}
	}
	return ""
}

// postJSON 发送 JSON 请求，非 2xx 时带上服务返回的错误信息
func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := firstString(gjson.ParseBytes(body), "error.message", "error", "message")
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}
