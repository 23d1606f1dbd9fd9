// Package normalize maps parser output into persistence-ready unified
// entities and resolves conflicts when multiple inputs cover the same
// period key. Grounded on original_source/app/services/validation.py's
// ConflictResolver for the resolution policy and the teacher's
// internal/pipeline/transform.go for the mapping style.
package normalize

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/parsers"
)

// Record converts one parser Triple into a persistence-ready
// FinancialRecord plus its accounts and account values. Callers should
// only do this after Validate has confirmed the triple IsValid, per
// spec.md's "is_valid gates persistence" invariant.
func Record(t parsers.Triple, now time.Time) (domain.FinancialRecord, []domain.Account, []domain.AccountValue, error) {
	periodStart, err := civil.ParseDate(t.Record.PeriodStart)
	if err != nil {
		return domain.FinancialRecord{}, nil, nil, err
	}
	periodEnd, err := civil.ParseDate(t.Record.PeriodEnd)
	if err != nil {
		return domain.FinancialRecord{}, nil, nil, err
	}
	currency := strings.ToUpper(t.Record.Currency)

	revenue := domain.NewMoneyFromFloat(t.Record.Revenue).Round2()
	expenses := domain.NewMoneyFromFloat(t.Record.Expenses).Round2()
	netProfit := revenue.Sub(expenses).Round2()
	if t.Record.HasNetProfit {
		netProfit = domain.NewMoneyFromFloat(t.Record.NetProfit).Round2()
	}

	id := domain.RecordID(t.Record.Source, t.Record.PeriodStart, t.Record.PeriodEnd, t.Record.Disambiguator)

	rawData := t.Record.RawData
	if rawData == nil {
		rawData = map[string]any{}
	}

	record := domain.FinancialRecord{
		ID:          id,
		Source:      t.Record.Source,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Currency:    currency,
		Revenue:     revenue,
		Expenses:    expenses,
		NetProfit:   netProfit,
		RawData:     rawData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	values := make([]domain.AccountValue, 0, len(t.Values))
	for _, v := range t.Values {
		values = append(values, domain.AccountValue{
			FinancialRecordID: id,
			AccountID:         v.AccountID,
			Value:             domain.NewMoneyFromFloat(v.Value).Round2(),
		})
	}

	return record, t.Accounts, values, nil
}
