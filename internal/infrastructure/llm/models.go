package llm

import (
	"sort"
	"strings"

	"doggo-chat-api/internal/config"
	"doggo-chat-api/internal/domain/service"
)

// 提供商名称
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DefaultModel 未知标识回退到的模型
const DefaultModel = "sonnet"

// defaultRoutes 抽象模型标识到提供商模型的静态映射，单价为每千 token 美元
var defaultRoutes = map[string]service.ModelRoute{
	"haiku": {
		Provider: ProviderAnthropic, ModelID: "claude-3-5-haiku-20241022",
		SupportsVision: true, InputCostPer1K: 0.0008, OutputCostPer1K: 0.004,
	},
	"sonnet": {
		Provider: ProviderAnthropic, ModelID: "claude-sonnet-4-20250514",
		SupportsVision: true, InputCostPer1K: 0.003, OutputCostPer1K: 0.015,
	},
	"opus": {
		Provider: ProviderAnthropic, ModelID: "claude-opus-4-20250514",
		SupportsVision: true, InputCostPer1K: 0.015, OutputCostPer1K: 0.075,
	},
	"gpt-4o": {
		Provider: ProviderOpenAI, ModelID: "gpt-4o",
		SupportsVision: true, InputCostPer1K: 0.0025, OutputCostPer1K: 0.01,
	},
	"gpt-4o-mini": {
		Provider: ProviderOpenAI, ModelID: "gpt-4o-mini",
		SupportsVision: true, InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006,
	},
}

// RouteTable 不可变的路由表
type RouteTable struct {
	routes       map[string]service.ModelRoute
	byModelID    map[string]string
	defaultAlias string
}

// NewRouteTable 以内置映射为基础，合并配置中的覆盖项
func NewRouteTable(cfg *config.LLMConfig) *RouteTable {
	t := &RouteTable{
		routes:    make(map[string]service.ModelRoute, len(defaultRoutes)),
		byModelID: make(map[string]string, len(defaultRoutes)),
	}
	for alias, r := range defaultRoutes {
		r.Alias = alias
		t.routes[alias] = r
	}
	if cfg != nil {
		for alias, m := range cfg.Models {
			alias = normalizeAlias(alias)
			if alias == "" || m.Provider == "" || m.ModelID == "" {
				continue
			}
			t.routes[alias] = service.ModelRoute{
				Alias:           alias,
				Provider:        strings.ToLower(m.Provider),
				ModelID:         m.ModelID,
				SupportsVision:  m.SupportsVision,
				InputCostPer1K:  m.InputCostPer1K,
				OutputCostPer1K: m.OutputCostPer1K,
			}
		}
	}

	// 按别名排序建立反查，保证同一具体模型总是映射到同一个别名
	aliases := t.Aliases()
	for _, alias := range aliases {
		id := strings.ToLower(t.routes[alias].ModelID)
		if _, ok := t.byModelID[id]; !ok {
			t.byModelID[id] = alias
		}
	}

	t.defaultAlias = DefaultModel
	if cfg != nil {
		if d := normalizeAlias(cfg.DefaultModel); d != "" {
			if _, ok := t.routes[d]; ok {
				t.defaultAlias = d
			}
		}
	}
	return t
}

// Resolve 解析模型标识；既接受别名也接受具体模型 ID，未知标识回退到默认路由
func (t *RouteTable) Resolve(modelID string) service.ModelRoute {
	key := normalizeAlias(modelID)
	if r, ok := t.routes[key]; ok {
		return r
	}
	if alias, ok := t.byModelID[key]; ok {
		return t.routes[alias]
	}
	r := t.routes[t.defaultAlias]
	r.Fallback = true
	return r
}

// Aliases 已注册的别名（有序）
func (t *RouteTable) Aliases() []string {
	out := make([]string, 0, len(t.routes))
	for alias := range t.routes {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
