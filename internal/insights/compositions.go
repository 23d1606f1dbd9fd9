package insights

import (
	"context"
	"fmt"
	"math"

	"github.com/dvloznov/finance-agent/internal/tools"
)

func stringArg(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func periodLabel(params map[string]any) string {
	start := stringArg(params, "start_date", "")
	end := stringArg(params, "end_date", "")
	if start == "" || end == "" {
		return "unspecified"
	}
	return start + " to " + end
}

func callTool(ctx context.Context, registry *tools.Registry, name string, args map[string]any) (map[string]any, error) {
	raw, err := registry.Call(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result shape %T", name, raw)
	}
	return out, nil
}

func revenueTrendsComposition() composition {
	return composition{
		insightType: "revenue-trends",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a short narrative about revenue trends given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			dateArgs := map[string]any{"start_date": params["start_date"], "end_date": params["end_date"]}
			if src, ok := params["source"]; ok {
				dateArgs["source"] = src
			}
			revenue, err := callTool(ctx, registry, "get_revenue_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			total, _ := revenue["total"].(float64)
			findings := []string{fmt.Sprintf("Total revenue for the period is %.2f.", total)}
			recommendations := []string{"Review the highest-contributing periods for repeatable revenue drivers."}
			return periodLabel(params), revenue, findings, recommendations, nil
		},
	}
}

func expenseAnalysisComposition() composition {
	return composition{
		insightType: "expense-analysis",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a short narrative about expense patterns and cost optimization given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			dateArgs := map[string]any{"start_date": params["start_date"], "end_date": params["end_date"]}
			if src, ok := params["source"]; ok {
				dateArgs["source"] = src
			}
			expenses, err := callTool(ctx, registry, "get_expenses_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			trends, err := callTool(ctx, registry, "analyze_expense_trends", map[string]any{"start": params["start_date"], "end": params["end_date"]})
			if err != nil {
				return "", nil, nil, nil, err
			}
			dataPoints := map[string]any{"totals": expenses, "trends": trends}
			total, _ := expenses["total"].(float64)
			findings := []string{fmt.Sprintf("Total expenses for the period are %.2f.", total)}
			recommendations := []string{"Investigate any decreasing segments for cost-saving practices worth repeating."}
			return periodLabel(params), dataPoints, findings, recommendations, nil
		},
	}
}

func cashFlowComposition() composition {
	return composition{
		insightType: "cash-flow",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a short narrative about cash flow health and liquidity given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			dateArgs := map[string]any{"start_date": params["start_date"], "end_date": params["end_date"]}
			if src, ok := params["source"]; ok {
				dateArgs["source"] = src
			}
			revenue, err := callTool(ctx, registry, "get_revenue_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			expenses, err := callTool(ctx, registry, "get_expenses_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			revTotal, _ := revenue["total"].(float64)
			expTotal, _ := expenses["total"].(float64)
			netCashFlow := revTotal - expTotal
			dataPoints := map[string]any{"revenue_total": revTotal, "expense_total": expTotal, "net_cash_flow": netCashFlow}
			findings := []string{fmt.Sprintf("Net cash flow for the period is %.2f.", netCashFlow)}
			recommendations := []string{"Maintain a cash buffer sized to at least one period of expenses."}
			if netCashFlow < 0 {
				recommendations = append(recommendations, "Cash flow is negative for this period; prioritize expense reduction or revenue acceleration.")
			}
			return periodLabel(params), dataPoints, findings, recommendations, nil
		},
	}
}

func seasonalPatternsComposition() composition {
	return composition{
		insightType: "seasonal-patterns",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a short narrative about seasonal and cyclical patterns given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			metric := stringArg(params, "metric", "revenue")
			years := params["years"]
			if years == nil {
				years = []any{}
			}
			seasonal, err := callTool(ctx, registry, "analyze_seasonal_patterns", map[string]any{"metric": metric, "years": years})
			if err != nil {
				return "", nil, nil, nil, err
			}
			findings := []string{fmt.Sprintf("Seasonal pattern analysis computed for metric %q.", metric)}
			recommendations := []string{"Plan working-capital needs around the identified peak and trough months."}
			return fmt.Sprintf("metric=%s", metric), seasonal, findings, recommendations, nil
		},
	}
}

func quarterlyPerformanceComposition() composition {
	return composition{
		insightType: "quarterly-performance",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a short narrative about quarterly performance and year-over-year change given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			metric := stringArg(params, "metric", "net_profit")
			result, err := callTool(ctx, registry, "get_quarterly_performance", map[string]any{"year": params["year"], "metric": metric})
			if err != nil {
				return "", nil, nil, nil, err
			}
			findings := []string{fmt.Sprintf("Quarterly %s performance computed.", metric)}
			recommendations := []string{"Compare the strongest and weakest quarters for seasonal staffing or budget decisions."}
			year, _ := result["year"].(float64)
			return fmt.Sprintf("year=%d", int(year)), result, findings, recommendations, nil
		},
	}
}

func comprehensiveSummaryComposition() composition {
	return composition{
		insightType: "comprehensive-summary",
		prompt: func(dp map[string]any) string {
			return fmt.Sprintf("Write a comprehensive financial narrative covering revenue, expenses, and cash flow given this data: %v", dp)
		},
		gather: func(ctx context.Context, registry *tools.Registry, params map[string]any) (string, map[string]any, []string, []string, error) {
			dateArgs := map[string]any{"start_date": params["start_date"], "end_date": params["end_date"]}
			if src, ok := params["source"]; ok {
				dateArgs["source"] = src
			}
			revenue, err := callTool(ctx, registry, "get_revenue_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			expenses, err := callTool(ctx, registry, "get_expenses_by_period", dateArgs)
			if err != nil {
				return "", nil, nil, nil, err
			}
			categories, err := callTool(ctx, registry, "get_expense_categories", map[string]any{"start": params["start_date"], "end": params["end_date"]})
			if err != nil {
				return "", nil, nil, nil, err
			}
			revTotal, _ := revenue["total"].(float64)
			expTotal, _ := expenses["total"].(float64)
			margin := 0.0
			if revTotal != 0 {
				margin = (revTotal - expTotal) / math.Abs(revTotal) * 100
			}
			dataPoints := map[string]any{
				"revenue":         revenue,
				"expenses":        expenses,
				"expense_categories": categories,
				"net_margin_pct":  margin,
			}
			findings := []string{
				fmt.Sprintf("Revenue totals %.2f against expenses of %.2f.", revTotal, expTotal),
				fmt.Sprintf("Net margin is %.1f%%.", margin),
			}
			recommendations := []string{"Cross-check the top expense categories against the revenue drivers for the same period."}
			return periodLabel(params), dataPoints, findings, recommendations, nil
		},
	}
}
