package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/domain"
	"google.golang.org/api/iterator"
)

// CategoryTotal is one account's summed contribution across every record
// whose period falls within a window.
type CategoryTotal struct {
	AccountID   string
	AccountName string
	Total       domain.Money
}

// CategoryTotals joins account_values to financial_records and accounts
// to break revenue/expense totals down by account for the tool registry's
// category-split tools (get_expense_categories, and the "category split
// if available" clause of get_expenses_by_period).
func (s *Store) CategoryTotals(ctx context.Context, start, end civil.Date, accountType domain.AccountType) ([]CategoryTotal, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT a.account_id AS account_id, a.name AS name, SUM(v.value) AS total
		FROM %s v
		JOIN %s r ON v.financial_record_id = r.record_id
		JOIN %s a ON v.account_id = a.account_id
		WHERE r.period_start >= @start AND r.period_end <= @end
		  AND a.account_type = @accountType
		GROUP BY a.account_id, a.name
		ORDER BY total DESC
	`, s.table(TableAccountValues), s.table(TableFinancialRecords), s.table(TableAccounts)))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "start", Value: start},
		{Name: "end", Value: end},
		{Name: "accountType", Value: string(accountType)},
	}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.CategoryTotals: reading: %w", err)
	}
	var out []CategoryTotal
	for {
		var row struct {
			AccountID string  `bigquery:"account_id"`
			Name      string  `bigquery:"name"`
			Total     float64 `bigquery:"total"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store.CategoryTotals: iterating: %w", err)
		}
		out = append(out, CategoryTotal{
			AccountID:   row.AccountID,
			AccountName: row.Name,
			Total:       domain.NewMoneyFromFloat(row.Total).Round2(),
		})
	}
	return out, nil
}
