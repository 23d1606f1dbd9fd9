package tools

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/store"
)

// RegisterBaseTools registers the nine base analytical tools from spec.md
// §4.6's minimum tool set. Each handler is backed by st and returns plain
// JSON-shaped maps so the LLM Adapter can hand results straight back to a
// provider without an intermediate DTO layer.
func RegisterBaseTools(r *Registry, st *store.Store) {
	r.Register(Tool{Schema: revenueByPeriodSchema(), Handler: revenueByPeriodHandler(st)})
	r.Register(Tool{Schema: expensesByPeriodSchema(), Handler: expensesByPeriodHandler(st)})
	r.Register(Tool{Schema: compareMetricsSchema(), Handler: compareMetricsHandler(st)})
	r.Register(Tool{Schema: growthRateSchema(), Handler: growthRateHandler(st)})
	r.Register(Tool{Schema: detectAnomaliesSchema(), Handler: detectAnomaliesHandler(st)})
	r.Register(Tool{Schema: expenseTrendsSchema(), Handler: expenseTrendsHandler(st)})
	r.Register(Tool{Schema: expenseCategoriesSchema(), Handler: expenseCategoriesHandler(st)})
	r.Register(Tool{Schema: seasonalPatternsSchema(), Handler: seasonalPatternsHandler(st)})
	r.Register(Tool{Schema: quarterlyPerformanceSchema(), Handler: quarterlyPerformanceHandler(st)})
}

func sourceEnum() []string { return []string{string(domain.SourceDialectA), string(domain.SourceDialectB)} }

func metricEnum() []string { return []string{"revenue", "expenses", "net_profit"} }

// ---- get_revenue_by_period ----

func revenueByPeriodSchema() Schema {
	return Schema{
		Name:        "get_revenue_by_period",
		Description: "Total revenue and its per-record breakdown over a date range.",
		Parameters: []Parameter{
			{Name: "start_date", Type: TypeString, Required: true, Description: "Window start, YYYY-MM-DD."},
			{Name: "end_date", Type: TypeString, Required: true, Description: "Window end, YYYY-MM-DD."},
			{Name: "source", Type: TypeString, Enum: sourceEnum(), Description: "Restrict to one source dialect."},
			{Name: "currency", Type: TypeString, Description: "Restrict to one currency code."},
		},
	}
}

func revenueByPeriodHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start, end, err := parseWindow(args, "get_revenue_by_period")
		if err != nil {
			return nil, err
		}
		f := store.RecordFilter{PeriodStart: &start, PeriodEnd: &end}
		f.Currency, _ = args["currency"].(string)
		if src, _ := args["source"].(string); src != "" {
			f.Source = domain.SourceType(src)
		}
		records, err := st.FindRecords(ctx, f)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "get_revenue_by_period: querying records", err)
		}
		total := domain.ZeroMoney()
		breakdown := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			total = total.Add(rec.Revenue)
			breakdown = append(breakdown, map[string]any{
				"period_start": rec.PeriodStart.String(),
				"period_end":   rec.PeriodEnd.String(),
				"source":       rec.Source,
				"revenue":      rec.Revenue.Round2().Float64(),
			})
		}
		return map[string]any{"total": total.Round2().Float64(), "breakdown": breakdown}, nil
	}
}

// ---- get_expenses_by_period ----

func expensesByPeriodSchema() Schema {
	return Schema{
		Name:        "get_expenses_by_period",
		Description: "Total expenses, per-record breakdown, and category split over a date range.",
		Parameters: []Parameter{
			{Name: "start_date", Type: TypeString, Required: true, Description: "Window start, YYYY-MM-DD."},
			{Name: "end_date", Type: TypeString, Required: true, Description: "Window end, YYYY-MM-DD."},
			{Name: "source", Type: TypeString, Enum: sourceEnum(), Description: "Restrict to one source dialect."},
			{Name: "currency", Type: TypeString, Description: "Restrict to one currency code."},
		},
	}
}

func expensesByPeriodHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start, end, err := parseWindow(args, "get_expenses_by_period")
		if err != nil {
			return nil, err
		}
		f := store.RecordFilter{PeriodStart: &start, PeriodEnd: &end}
		f.Currency, _ = args["currency"].(string)
		if src, _ := args["source"].(string); src != "" {
			f.Source = domain.SourceType(src)
		}
		records, err := st.FindRecords(ctx, f)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "get_expenses_by_period: querying records", err)
		}
		total := domain.ZeroMoney()
		breakdown := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			total = total.Add(rec.Expenses)
			breakdown = append(breakdown, map[string]any{
				"period_start": rec.PeriodStart.String(),
				"period_end":   rec.PeriodEnd.String(),
				"source":       rec.Source,
				"expenses":     rec.Expenses.Round2().Float64(),
			})
		}
		result := map[string]any{"total": total.Round2().Float64(), "breakdown": breakdown}
		// Category split is best-effort: absent account_values for this
		// window (e.g. a source dialect that never reported line items)
		// just yields an empty split, not an error.
		cats, err := st.CategoryTotals(ctx, start, end, domain.AccountExpense)
		if err == nil && len(cats) > 0 {
			split := make([]map[string]any, 0, len(cats))
			for _, c := range cats {
				split = append(split, map[string]any{
					"account_id": c.AccountID,
					"name":       c.AccountName,
					"total":      c.Total.Float64(),
				})
			}
			result["category_split"] = split
		}
		return result, nil
	}
}

// ---- compare_financial_metrics ----

func compareMetricsSchema() Schema {
	return Schema{
		Name:        "compare_financial_metrics",
		Description: "Compares one or more metrics between two date windows, absolute and percent change.",
		Parameters: []Parameter{
			{Name: "start1", Type: TypeString, Required: true, Description: "First window start, YYYY-MM-DD."},
			{Name: "end1", Type: TypeString, Required: true, Description: "First window end, YYYY-MM-DD."},
			{Name: "start2", Type: TypeString, Required: true, Description: "Second window start, YYYY-MM-DD."},
			{Name: "end2", Type: TypeString, Required: true, Description: "Second window end, YYYY-MM-DD."},
			{Name: "metrics", Type: TypeArray, Required: true, Description: "Metrics to compare.",
				Items: &Parameter{Type: TypeString, Enum: metricEnum()}},
		},
	}
}

func compareMetricsHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		s1, e1, err := parseDatePair(args, "compare_financial_metrics", "start1", "end1")
		if err != nil {
			return nil, err
		}
		s2, e2, err := parseDatePair(args, "compare_financial_metrics", "start2", "end2")
		if err != nil {
			return nil, err
		}
		metrics, err := stringArray(args, "metrics")
		if err != nil {
			return nil, err
		}
		agg1, err := st.AggregatePeriod(ctx, s1, e1, "")
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "compare_financial_metrics: aggregating window 1", err)
		}
		agg2, err := st.AggregatePeriod(ctx, s2, e2, "")
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "compare_financial_metrics: aggregating window 2", err)
		}
		out := make(map[string]any, len(metrics))
		for _, m := range metrics {
			v1 := metricValue(agg1, m)
			v2 := metricValue(agg2, m)
			out[m] = map[string]any{
				"window1":         v1.Round2().Float64(),
				"window2":         v2.Round2().Float64(),
				"absolute_change": v2.Sub(v1).Round2().Float64(),
				"percent_change":  percentChange(v1.Float64(), v2.Float64()),
			}
		}
		return out, nil
	}
}

func metricValue(agg store.PeriodAggregate, metric string) domain.Money {
	switch metric {
	case "revenue":
		return agg.Revenue
	case "expenses":
		return agg.Expenses
	default:
		return agg.NetProfit
	}
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		return 100
	}
	return (to - from) / math.Abs(from) * 100
}

// ---- calculate_growth_rate ----

func growthRateSchema() Schema {
	return Schema{
		Name:        "calculate_growth_rate",
		Description: "Per-consecutive-period growth and a CAGR-style summary across an ordered list of periods.",
		Parameters: []Parameter{
			{Name: "metric", Type: TypeString, Required: true, Enum: metricEnum()},
			{Name: "periods", Type: TypeArray, Required: true, Description: "Ordered list of {start,end} period objects, oldest first.",
				Items: &Parameter{Type: TypeString}},
		},
	}
}

func growthRateHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		metric, _ := args["metric"].(string)
		rawPeriods, ok := args["periods"].([]any)
		if !ok || len(rawPeriods) < 2 {
			return nil, apperr.New(apperr.KindValidation, "calculate_growth_rate: periods must list at least two {start,end} windows")
		}
		type window struct{ start, end civil.Date }
		windows := make([]window, 0, len(rawPeriods))
		for _, raw := range rawPeriods {
			obj, ok := raw.(map[string]any)
			if !ok {
				return nil, apperr.New(apperr.KindValidation, "calculate_growth_rate: each period must be an object with start/end")
			}
			s, e, err := parseDatePair(obj, "calculate_growth_rate", "start", "end")
			if err != nil {
				return nil, err
			}
			windows = append(windows, window{start: s, end: e})
		}
		values := make([]domain.Money, len(windows))
		for i, w := range windows {
			agg, err := st.AggregatePeriod(ctx, w.start, w.end, "")
			if err != nil {
				return nil, apperr.Wrap(apperr.KindStoreTransient, "calculate_growth_rate: aggregating period", err)
			}
			values[i] = metricValue(agg, metric)
		}
		pairwise := make([]map[string]any, 0, len(values)-1)
		for i := 1; i < len(values); i++ {
			pairwise = append(pairwise, map[string]any{
				"from_period":    i - 1,
				"to_period":      i,
				"growth_percent": percentChange(values[i-1].Float64(), values[i].Float64()),
			})
		}
		first, last := values[0].Float64(), values[len(values)-1].Float64()
		var cagr float64
		periodsElapsed := float64(len(values) - 1)
		if first > 0 && periodsElapsed > 0 {
			cagr = (math.Pow(last/first, 1/periodsElapsed) - 1) * 100
		}
		return map[string]any{"pairwise": pairwise, "cagr_percent": cagr}, nil
	}
}

// ---- detect_anomalies ----

func detectAnomaliesSchema() Schema {
	return Schema{
		Name:        "detect_anomalies",
		Description: "Flags periods whose metric deviates from the trailing average by more than threshold.",
		Parameters: []Parameter{
			{Name: "metric", Type: TypeString, Required: true, Enum: metricEnum()},
			{Name: "threshold", Type: TypeNumber, Default: 0.2, Minimum: floatPtr(0), Description: "Fractional deviation from trailing average that counts as an outlier."},
			{Name: "lookback_months", Type: TypeNumber, Default: 12, Minimum: floatPtr(1), Maximum: floatPtr(120), Description: "How many trailing months of records to scan."},
		},
	}
}

func detectAnomaliesHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		metric, _ := args["metric"].(string)
		threshold := 0.2
		if v, ok := asFloat(args["threshold"]); ok {
			threshold = v
		}
		if threshold <= 0 {
			return nil, apperr.New(apperr.KindValidation, "detect_anomalies: threshold must be > 0")
		}
		lookback := 12
		if v, ok := asFloat(args["lookback_months"]); ok {
			lookback = int(v)
		}
		if lookback < 1 || lookback > 120 {
			return nil, apperr.New(apperr.KindValidation, "detect_anomalies: lookback_months must be in [1, 120]")
		}
		records, err := st.FindRecords(ctx, store.RecordFilter{Limit: lookback})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "detect_anomalies: querying records", err)
		}
		sort.Slice(records, func(i, j int) bool { return records[i].PeriodStart.Before(records[j].PeriodStart) })
		values := make([]float64, len(records))
		for i, r := range records {
			values[i] = metricValueByName(r, metric)
		}
		mean, stdev := meanStdev(values)
		var outliers []map[string]any
		for i, r := range records {
			if mean == 0 {
				continue
			}
			deviation := math.Abs(values[i]-mean) / math.Abs(mean)
			if deviation > threshold {
				zscore := 0.0
				if stdev > 0 {
					zscore = (values[i] - mean) / stdev
				}
				outliers = append(outliers, map[string]any{
					"period_start": r.PeriodStart.String(),
					"period_end":   r.PeriodEnd.String(),
					"value":        values[i],
					"deviation":    deviation,
					"zscore":       zscore,
				})
			}
		}
		return map[string]any{"outliers": outliers, "mean": mean, "stdev": stdev}, nil
	}
}

func metricValueByName(r domain.FinancialRecord, metric string) float64 {
	switch metric {
	case "revenue":
		return r.Revenue.Float64()
	case "expenses":
		return r.Expenses.Float64()
	default:
		return r.NetProfit.Float64()
	}
}

func meanStdev(values []float64) (mean, stdev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stdev = math.Sqrt(sq / float64(len(values)))
	return mean, stdev
}

// ---- analyze_expense_trends ----

func expenseTrendsSchema() Schema {
	return Schema{
		Name:        "analyze_expense_trends",
		Description: "Identifies monotonic expense segments and inflection points across a date range.",
		Parameters: []Parameter{
			{Name: "start", Type: TypeString, Required: true, Description: "Window start, YYYY-MM-DD."},
			{Name: "end", Type: TypeString, Required: true, Description: "Window end, YYYY-MM-DD."},
		},
	}
}

func expenseTrendsHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start, end, err := parseDatePair(args, "analyze_expense_trends", "start", "end")
		if err != nil {
			return nil, err
		}
		records, err := st.FindRecords(ctx, store.RecordFilter{PeriodStart: &start, PeriodEnd: &end, Limit: 500})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "analyze_expense_trends: querying records", err)
		}
		sort.Slice(records, func(i, j int) bool { return records[i].PeriodStart.Before(records[j].PeriodStart) })
		var segments []map[string]any
		var inflections []string
		if len(records) > 1 {
			segStart := 0
			direction := 0
			for i := 1; i < len(records); i++ {
				d := sign(records[i].Expenses.Cmp(records[i-1].Expenses))
				if direction != 0 && d != 0 && d != direction {
					segments = append(segments, trendSegment(records, segStart, i-1, direction))
					inflections = append(inflections, records[i-1].PeriodStart.String())
					segStart = i - 1
				}
				if d != 0 {
					direction = d
				}
			}
			segments = append(segments, trendSegment(records, segStart, len(records)-1, direction))
		}
		return map[string]any{"segments": segments, "inflection_points": inflections}, nil
	}
}

func sign(c int) int {
	switch {
	case c > 0:
		return 1
	case c < 0:
		return -1
	default:
		return 0
	}
}

func trendSegment(records []domain.FinancialRecord, from, to, direction int) map[string]any {
	trend := "flat"
	switch {
	case direction > 0:
		trend = "increasing"
	case direction < 0:
		trend = "decreasing"
	}
	return map[string]any{
		"start": records[from].PeriodStart.String(),
		"end":   records[to].PeriodEnd.String(),
		"trend": trend,
	}
}

// ---- get_expense_categories ----

func expenseCategoriesSchema() Schema {
	return Schema{
		Name:        "get_expense_categories",
		Description: "Expense category totals and each category's share of the total.",
		Parameters: []Parameter{
			{Name: "start", Type: TypeString, Required: true, Description: "Window start, YYYY-MM-DD."},
			{Name: "end", Type: TypeString, Required: true, Description: "Window end, YYYY-MM-DD."},
		},
	}
}

func expenseCategoriesHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start, end, err := parseDatePair(args, "get_expense_categories", "start", "end")
		if err != nil {
			return nil, err
		}
		cats, err := st.CategoryTotals(ctx, start, end, domain.AccountExpense)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreTransient, "get_expense_categories: querying category totals", err)
		}
		total := 0.0
		for _, c := range cats {
			total += c.Total.Float64()
		}
		out := make([]map[string]any, 0, len(cats))
		for _, c := range cats {
			share := 0.0
			if total != 0 {
				share = c.Total.Float64() / total * 100
			}
			out = append(out, map[string]any{
				"account_id": c.AccountID,
				"name":       c.AccountName,
				"total":      c.Total.Float64(),
				"share_pct":  share,
			})
		}
		return map[string]any{"categories": out, "total": total}, nil
	}
}

// ---- analyze_seasonal_patterns ----

func seasonalPatternsSchema() Schema {
	return Schema{
		Name:        "analyze_seasonal_patterns",
		Description: "Per-calendar-month average, peak, and trough for a metric across a set of years.",
		Parameters: []Parameter{
			{Name: "metric", Type: TypeString, Required: true, Enum: metricEnum()},
			{Name: "years", Type: TypeArray, Required: true, Items: &Parameter{Type: TypeNumber}},
		},
	}
}

func seasonalPatternsHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		metric, _ := args["metric"].(string)
		rawYears, ok := args["years"].([]any)
		if !ok || len(rawYears) == 0 {
			return nil, apperr.New(apperr.KindValidation, "analyze_seasonal_patterns: years must be a non-empty list")
		}
		byMonth := make(map[int][]float64)
		for _, ry := range rawYears {
			yf, ok := asFloat(ry)
			if !ok {
				return nil, apperr.New(apperr.KindValidation, "analyze_seasonal_patterns: years must be numbers")
			}
			year := int(yf)
			start := civil.Date{Year: year, Month: 1, Day: 1}
			end := civil.Date{Year: year, Month: 12, Day: 31}
			records, err := st.FindRecords(ctx, store.RecordFilter{PeriodStart: &start, PeriodEnd: &end, Limit: 500})
			if err != nil {
				return nil, apperr.Wrap(apperr.KindStoreTransient, "analyze_seasonal_patterns: querying records", err)
			}
			for _, r := range records {
				byMonth[int(r.PeriodStart.Month)] = append(byMonth[int(r.PeriodStart.Month)], metricValueByName(r, metric))
			}
		}
		months := make([]map[string]any, 0, 12)
		for m := 1; m <= 12; m++ {
			vals := byMonth[m]
			if len(vals) == 0 {
				continue
			}
			avg, peak, trough := avgPeakTrough(vals)
			months = append(months, map[string]any{
				"month":   m,
				"average": avg,
				"peak":    peak,
				"trough":  trough,
			})
		}
		return map[string]any{"months": months}, nil
	}
}

func avgPeakTrough(vals []float64) (avg, peak, trough float64) {
	peak, trough = vals[0], vals[0]
	var sum float64
	for _, v := range vals {
		sum += v
		if v > peak {
			peak = v
		}
		if v < trough {
			trough = v
		}
	}
	return sum / float64(len(vals)), peak, trough
}

// ---- get_quarterly_performance ----

func quarterlyPerformanceSchema() Schema {
	return Schema{
		Name:        "get_quarterly_performance",
		Description: "Four-quarter summary for a metric within a year, with year-over-year change if the prior year has data.",
		Parameters: []Parameter{
			{Name: "year", Type: TypeNumber, Required: true},
			{Name: "metric", Type: TypeString, Required: true, Enum: metricEnum()},
		},
	}
}

func quarterlyPerformanceHandler(st *store.Store) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		yf, ok := asFloat(args["year"])
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "get_quarterly_performance: year must be a number")
		}
		year := int(yf)
		metric, _ := args["metric"].(string)

		quarters, err := quarterlyTotals(ctx, st, year, metric)
		if err != nil {
			return nil, err
		}
		prevQuarters, err := quarterlyTotals(ctx, st, year-1, metric)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 4)
		for q := 0; q < 4; q++ {
			entry := map[string]any{"quarter": q + 1, "total": quarters[q]}
			if prevQuarters[q] != 0 {
				entry["yoy_percent"] = percentChange(prevQuarters[q], quarters[q])
			}
			out[q] = entry
		}
		return map[string]any{"year": year, "quarters": out}, nil
	}
}

func quarterlyTotals(ctx context.Context, st *store.Store, year int, metric string) ([4]float64, error) {
	var totals [4]float64
	start := civil.Date{Year: year, Month: 1, Day: 1}
	end := civil.Date{Year: year, Month: 12, Day: 31}
	records, err := st.FindRecords(ctx, store.RecordFilter{PeriodStart: &start, PeriodEnd: &end, Limit: 500})
	if err != nil {
		return totals, apperr.Wrap(apperr.KindStoreTransient, "get_quarterly_performance: querying records", err)
	}
	for _, r := range records {
		q := (int(r.PeriodStart.Month) - 1) / 3
		totals[q] += metricValueByName(r, metric)
	}
	return totals, nil
}

// ---- shared arg-parsing helpers ----

func parseWindow(args map[string]any, toolName string) (civil.Date, civil.Date, error) {
	return parseDatePair(args, toolName, "start_date", "end_date")
}

func parseDatePair(args map[string]any, toolName, startKey, endKey string) (civil.Date, civil.Date, error) {
	startStr, _ := args[startKey].(string)
	endStr, _ := args[endKey].(string)
	if err := ValidateDateRange(toolName, startStr, endStr); err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	start, err := civil.ParseDate(startStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, apperr.New(apperr.KindValidation, fmt.Sprintf("%s: invalid %s %q", toolName, startKey, startStr))
	}
	end, err := civil.ParseDate(endStr)
	if err != nil {
		return civil.Date{}, civil.Date{}, apperr.New(apperr.KindValidation, fmt.Sprintf("%s: invalid %s %q", toolName, endKey, endStr))
	}
	return start, end, nil
}

func stringArray(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("parameter %q must be an array", key))
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("parameter %q must contain only strings", key))
		}
		out = append(out, s)
	}
	return out, nil
}
