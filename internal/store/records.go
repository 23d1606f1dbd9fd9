package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/domain"
	"google.golang.org/api/iterator"
)

// UpsertRecord inserts a new financial_records row, or updates the existing
// row for the same record_id in place. BigQuery has no native UPSERT for
// the streaming path used elsewhere in this package, so this mirrors the
// teacher's UpsertAccount: look up by key, then either DML UPDATE or
// Inserter().Put, exactly as internal/infra/bigquery/accounts_ops.go does
// for the accounts table.
func (s *Store) UpsertRecord(ctx context.Context, r domain.FinancialRecord) error {
	existing, err := s.findRecordByID(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("store.UpsertRecord: %w", err)
	}
	row, err := toFinancialRecordRow(r)
	if err != nil {
		return fmt.Errorf("store.UpsertRecord: encoding row: %w", err)
	}
	if existing == nil {
		inserter := s.client.Dataset(s.datasetID).Table(TableFinancialRecords).Inserter()
		if err := inserter.Put(ctx, row); err != nil {
			return classify(err)
		}
		return nil
	}

	query := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET source = @source,
		    currency = @currency,
		    revenue = @revenue,
		    expenses = @expenses,
		    net_profit = @netProfit,
		    raw_data = @rawData,
		    updated_ts = @updatedTs
		WHERE record_id = @recordID
	`, s.table(TableFinancialRecords)))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "source", Value: row.Source},
		{Name: "currency", Value: row.Currency},
		{Name: "revenue", Value: row.Revenue},
		{Name: "expenses", Value: row.Expenses},
		{Name: "netProfit", Value: row.NetProfit},
		{Name: "rawData", Value: row.RawData},
		{Name: "updatedTs", Value: row.UpdatedTS},
		{Name: "recordID", Value: r.ID},
	}
	job, err := query.Run(ctx)
	if err != nil {
		return classify(err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return classify(err)
	}
	if err := status.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) findRecordByID(ctx context.Context, id string) (*domain.FinancialRecord, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT record_id, source, period_start, period_end, currency,
		       revenue, expenses, net_profit, raw_data, created_ts, updated_ts
		FROM %s
		WHERE record_id = @recordID
		LIMIT 1
	`, s.table(TableFinancialRecords)))
	query.Parameters = []bigquery.QueryParameter{{Name: "recordID", Value: id}}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("findRecordByID: reading: %w", err)
	}
	var row financialRecordRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, nil
		}
		return nil, fmt.Errorf("findRecordByID: iterating: %w", err)
	}
	rec := fromFinancialRecordRow(row)
	return &rec, nil
}

// FindRecordByKey looks up the currently-persisted record for a
// (period_start, period_end, currency) key, used by the ingest orchestrator
// to run ResolveAgainstExisting. Returns nil if none exists.
func (s *Store) FindRecordByKey(ctx context.Context, key domain.RecordKey) (*domain.FinancialRecord, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT record_id, source, period_start, period_end, currency,
		       revenue, expenses, net_profit, raw_data, created_ts, updated_ts
		FROM %s
		WHERE period_start = @periodStart
		  AND period_end = @periodEnd
		  AND currency = @currency
		LIMIT 1
	`, s.table(TableFinancialRecords)))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "periodStart", Value: key.PeriodStart},
		{Name: "periodEnd", Value: key.PeriodEnd},
		{Name: "currency", Value: key.Currency},
	}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.FindRecordByKey: reading: %w", err)
	}
	var row financialRecordRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, nil
		}
		return nil, fmt.Errorf("store.FindRecordByKey: iterating: %w", err)
	}
	rec := fromFinancialRecordRow(row)
	return &rec, nil
}

// RecordFilter narrows FindRecords; zero values are unfiltered.
type RecordFilter struct {
	PeriodStart *civil.Date
	PeriodEnd   *civil.Date
	Currency    string
	Source      domain.SourceType
	Limit       int
}

// FindRecords returns financial records matching the filter, most recent
// period first, per spec.md §4.4's find_records operation.
func (s *Store) FindRecords(ctx context.Context, f RecordFilter) ([]domain.FinancialRecord, error) {
	clauses := "WHERE 1=1"
	params := []bigquery.QueryParameter{}
	if f.PeriodStart != nil {
		clauses += " AND period_start >= @periodStart"
		params = append(params, bigquery.QueryParameter{Name: "periodStart", Value: *f.PeriodStart})
	}
	if f.PeriodEnd != nil {
		clauses += " AND period_end <= @periodEnd"
		params = append(params, bigquery.QueryParameter{Name: "periodEnd", Value: *f.PeriodEnd})
	}
	if f.Currency != "" {
		clauses += " AND currency = @currency"
		params = append(params, bigquery.QueryParameter{Name: "currency", Value: f.Currency})
	}
	if f.Source != "" {
		clauses += " AND source = @source"
		params = append(params, bigquery.QueryParameter{Name: "source", Value: string(f.Source)})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	q := s.client.Query(fmt.Sprintf(`
		SELECT record_id, source, period_start, period_end, currency,
		       revenue, expenses, net_profit, raw_data, created_ts, updated_ts
		FROM %s
		%s
		ORDER BY period_start DESC
		LIMIT %d
	`, s.table(TableFinancialRecords), clauses, limit))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.FindRecords: reading: %w", err)
	}
	var out []domain.FinancialRecord
	for {
		var row financialRecordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store.FindRecords: iterating: %w", err)
		}
		out = append(out, fromFinancialRecordRow(row))
	}
	return out, nil
}

// PeriodAggregate is the result of AggregatePeriod: totals across every
// record falling entirely within the requested window.
type PeriodAggregate struct {
	PeriodStart  civil.Date
	PeriodEnd    civil.Date
	Currency     string
	Revenue      domain.Money
	Expenses     domain.Money
	NetProfit    domain.Money
	RecordCount  int
}

// AggregatePeriod sums revenue/expenses/net_profit across every financial
// record whose window falls entirely within [start, end], per spec.md
// §4.4's aggregate_period operation and the /financial-data/{period}
// endpoint (spec.md §6, scenario 6).
func (s *Store) AggregatePeriod(ctx context.Context, start, end civil.Date, currency string) (PeriodAggregate, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT
			SUM(revenue) AS revenue,
			SUM(expenses) AS expenses,
			SUM(net_profit) AS net_profit,
			COUNT(*) AS record_count
		FROM %s
		WHERE period_start >= @start
		  AND period_end <= @end
		  AND (@currency = '' OR currency = @currency)
	`, s.table(TableFinancialRecords)))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "start", Value: start},
		{Name: "end", Value: end},
		{Name: "currency", Value: currency},
	}
	it, err := query.Read(ctx)
	if err != nil {
		return PeriodAggregate{}, fmt.Errorf("store.AggregatePeriod: reading: %w", err)
	}
	var row struct {
		Revenue     bigquery.NullFloat64 `bigquery:"revenue"`
		Expenses    bigquery.NullFloat64 `bigquery:"expenses"`
		NetProfit   bigquery.NullFloat64 `bigquery:"net_profit"`
		RecordCount int64                `bigquery:"record_count"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return PeriodAggregate{}, fmt.Errorf("store.AggregatePeriod: iterating: %w", err)
	}
	return PeriodAggregate{
		PeriodStart: start,
		PeriodEnd:   end,
		Currency:    currency,
		Revenue:     domain.NewMoneyFromFloat(row.Revenue.Float64).Round2(),
		Expenses:    domain.NewMoneyFromFloat(row.Expenses.Float64).Round2(),
		NetProfit:   domain.NewMoneyFromFloat(row.NetProfit.Float64).Round2(),
		RecordCount: int(row.RecordCount),
	}, nil
}

// InsertAccountValues batch-inserts one record's account attribution rows.
func (s *Store) InsertAccountValues(ctx context.Context, values []domain.AccountValue) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]accountValueRow, len(values))
	for i, v := range values {
		rows[i] = toAccountValueRow(v)
	}
	inserter := s.client.Dataset(s.datasetID).Table(TableAccountValues).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return classify(err)
	}
	return nil
}
