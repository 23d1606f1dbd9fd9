// Package insights implements the Insights Engine (C9): a set of canned
// compositions that read raw numbers through the Tool Registry, assemble a
// structured data_points dict, and ask the LLM Adapter for a narrative.
// Grounded on original_source/app/ai/tools/schemas.py's generate_*_insights
// tool family — the teacher has no analogue for a narrative-composition
// layer, so this package's shape (a registry-backed engine over
// domain-specific "compositions") is new, following the same
// dependency-injected-constructor idiom the rest of this module uses.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-agent/internal/llm"
	"github.com/dvloznov/finance-agent/internal/tools"
)

// Result is one insight composition's output, per spec.md §4.9.
type Result struct {
	InsightType     string
	Period          string
	Narrative       string
	KeyFindings     []string
	Recommendations []string
	DataPoints      map[string]any
	GeneratedAt     time.Time
}

// composition reads data via the registry, then returns a Result whose
// Narrative field is not yet filled in — Engine.Run fills it from the LLM
// Adapter using the composition's prompt.
type composition struct {
	insightType string
	prompt      func(dataPoints map[string]any) string
	gather      func(ctx context.Context, registry *tools.Registry, params map[string]any) (period string, dataPoints map[string]any, keyFindings []string, recommendations []string, err error)
}

// Engine runs the six canned compositions spec.md §4.9 names: revenue-
// trends, expense-analysis, cash-flow, seasonal-patterns, quarterly-
// performance, comprehensive-summary.
type Engine struct {
	registry     *tools.Registry
	adapter      *llm.Adapter
	cache        *Cache
	compositions map[string]composition
}

// New builds an Engine and registers the five insight-composition tools
// from original_source/app/ai/registry.py's FINANCIAL_TOOLS into registry,
// so the Agent Controller can invoke them like any other tool without
// internal/tools importing internal/insights (avoiding the import cycle:
// internal/tools stays domain-generic, internal/insights layers on top).
func New(registry *tools.Registry, adapter *llm.Adapter, cache *Cache) *Engine {
	e := &Engine{registry: registry, adapter: adapter, cache: cache}
	e.compositions = map[string]composition{
		"revenue-trends":       revenueTrendsComposition(),
		"expense-analysis":     expenseAnalysisComposition(),
		"cash-flow":            cashFlowComposition(),
		"seasonal-patterns":    seasonalPatternsComposition(),
		"quarterly-performance": quarterlyPerformanceComposition(),
		"comprehensive-summary": comprehensiveSummaryComposition(),
	}
	e.registerTools()
	return e
}

// Run executes one named composition, using the TTL cache keyed by
// (insightType, params).
func (e *Engine) Run(ctx context.Context, insightType string, params map[string]any) (Result, error) {
	if cached, ok := e.cache.Get(insightType, params); ok {
		return cached, nil
	}
	comp, ok := e.compositions[insightType]
	if !ok {
		return Result{}, fmt.Errorf("insights: unknown insight type %q", insightType)
	}
	period, dataPoints, findings, recommendations, err := comp.gather(ctx, e.registry, params)
	if err != nil {
		return Result{}, fmt.Errorf("insights: gathering %s: %w", insightType, err)
	}

	narrative, err := e.narrate(ctx, comp.prompt(dataPoints))
	if err != nil {
		return Result{}, fmt.Errorf("insights: narrating %s: %w", insightType, err)
	}

	result := Result{
		InsightType:     insightType,
		Period:          period,
		Narrative:       narrative,
		KeyFindings:     findings,
		Recommendations: recommendations,
		DataPoints:      dataPoints,
		GeneratedAt:     time.Now(),
	}
	e.cache.Set(insightType, params, result)
	return result, nil
}

// ClearCache supports spec.md §4.9's required cache-clear operation.
func (e *Engine) ClearCache() { e.cache.Clear() }

func (e *Engine) narrate(ctx context.Context, prompt string) (string, error) {
	resp, err := e.adapter.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a financial analyst writing a short narrative summary from structured data. Do not invent numbers beyond what is given."},
		{Role: llm.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.AssistantText, nil
}

// registerTools registers the five generate_*_insights tools from
// original_source/app/ai/tools/schemas.py into the shared registry, each
// delegating to Run. quarterly-performance has no generate_* analogue in
// the original and is not separately exposed as a callable tool — it's
// reachable only via the /insights/quarterly-performance HTTP endpoint,
// same as in spec.md §6.
func (e *Engine) registerTools() {
	e.registry.Register(tools.Tool{
		Schema:  insightToolSchema("generate_revenue_insights", "Generate AI-powered insights and narratives about revenue trends, patterns, and business implications.", true),
		Handler: e.insightToolHandler("revenue-trends"),
	})
	e.registry.Register(tools.Tool{
		Schema:  insightToolSchema("generate_expense_insights", "Generate AI-powered insights and narratives about expense patterns, cost analysis, and optimization opportunities.", true),
		Handler: e.insightToolHandler("expense-analysis"),
	})
	e.registry.Register(tools.Tool{
		Schema:  insightToolSchema("generate_cash_flow_insights", "Generate AI-powered insights about cash flow patterns, financial health, and liquidity analysis.", true),
		Handler: e.insightToolHandler("cash-flow"),
	})
	e.registry.Register(tools.Tool{
		Schema:  seasonalInsightToolSchema(),
		Handler: e.insightToolHandler("seasonal-patterns"),
	})
	e.registry.Register(tools.Tool{
		Schema:  insightToolSchema("generate_comprehensive_insights", "Generate comprehensive AI-powered insights covering revenue, expenses, and cash flow for complete financial analysis.", true),
		Handler: e.insightToolHandler("comprehensive-summary"),
	})
}

func (e *Engine) insightToolHandler(insightType string) tools.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		result, err := e.Run(ctx, insightType, args)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func insightToolSchema(name, description string, dated bool) tools.Schema {
	params := []tools.Parameter{
		{Name: "source", Type: tools.TypeString, Enum: sourceEnum(), Description: "Optional data source filter."},
	}
	if dated {
		params = append([]tools.Parameter{
			{Name: "start_date", Type: tools.TypeString, Required: true, Description: "Start date, YYYY-MM-DD."},
			{Name: "end_date", Type: tools.TypeString, Required: true, Description: "End date, YYYY-MM-DD."},
		}, params...)
	}
	return tools.Schema{Name: name, Description: description, Parameters: params}
}

func seasonalInsightToolSchema() tools.Schema {
	return tools.Schema{
		Name:        "generate_seasonal_insights",
		Description: "Generate AI-powered insights about seasonal patterns and cyclical trends in financial metrics.",
		Parameters: []tools.Parameter{
			{Name: "metric", Type: tools.TypeString, Required: true, Enum: []string{"revenue", "expenses", "net_profit"}, Default: "revenue"},
			{Name: "years", Type: tools.TypeArray, Items: &tools.Parameter{Type: tools.TypeNumber}},
			{Name: "source", Type: tools.TypeString, Enum: sourceEnum(), Description: "Optional data source filter."},
		},
	}
}

func sourceEnum() []string { return []string{"DialectA", "DialectB"} }
