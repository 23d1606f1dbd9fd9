// Package validate implements the rule set from spec.md §4.2: a pure
// function over the parser's intermediate triple, producing a
// severity-tagged ValidationResult with a quality score. Grounded on the
// teacher's internal/pipeline/validation.go (pure funcs, typed issue slice)
// generalized to the full rule table, and on
// original_source/app/services/validation.py for exact codes where spec.md
// doesn't already override them (see SPEC_FULL.md §9 for the overrides).
package validate

import (
	"strings"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/parsers"
)

const dateLayout = "2006-01-02"

var commonCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CAD": true, "AUD": true, "CHF": true, "CNY": true,
}

var highValueThreshold = mustMoney("1000000000000") // 10^12, per spec.md (overrides original's 1e9)
var balanceTolerance = mustMoney("0.01")

func mustMoney(s string) domain.Money {
	m, err := domain.ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Record runs the record-level rules (NEG_REV, NEG_EXP, HIGH_VAL, BAL_EQ,
// DATE_RANGE, FUTURE_PERIOD, OLD_PERIOD, CUR_FMT, CUR_UNCOMMON) over one
// parsed candidate and its account values, and the SUM_MISMATCH check.
func Record(t parsers.Triple) domain.ValidationResult {
	result := domain.ValidationResult{QualityScore: 1.0}
	for _, iss := range t.Record.ParseIssues {
		result.AddIssue(iss.Code, iss.Severity, iss.Message, iss.Field)
	}

	c := t.Record
	revenue := domain.NewMoneyFromFloat(c.Revenue)
	expenses := domain.NewMoneyFromFloat(c.Expenses)
	netProfit := revenue.Sub(expenses)
	if c.HasNetProfit {
		netProfit = domain.NewMoneyFromFloat(c.NetProfit)
	}

	if revenue.Sign() < 0 {
		result.AddIssue("NEG_REV", domain.SeverityWarning, "revenue is negative", "revenue")
	}
	if expenses.Sign() < 0 {
		result.AddIssue("NEG_EXP", domain.SeverityWarning, "expenses is negative", "expenses")
	}
	for _, v := range []struct {
		name string
		m    domain.Money
	}{{"revenue", revenue}, {"expenses", expenses}, {"net_profit", netProfit}} {
		if v.m.Abs().Cmp(highValueThreshold) > 0 {
			result.AddIssue("HIGH_VAL", domain.SeverityWarning, v.name+" exceeds 10^12", v.name)
		}
	}

	expectedNet := revenue.Sub(expenses)
	if domain.AbsDiff(netProfit, expectedNet).Cmp(balanceTolerance) > 0 {
		result.AddIssue("BAL_EQ", domain.SeverityError, "net_profit does not equal revenue minus expenses within tolerance", "net_profit")
	}

	start, startErr := time.Parse(dateLayout, c.PeriodStart)
	end, endErr := time.Parse(dateLayout, c.PeriodEnd)
	if startErr != nil || endErr != nil {
		result.AddIssue("DATE_RANGE", domain.SeverityError, "period_start or period_end is not a valid date", "period")
	} else {
		if end.Before(start) {
			result.AddIssue("DATE_RANGE", domain.SeverityError, "period_end is before period_start", "period_end")
		}
		now := time.Now().UTC()
		if end.After(now) {
			result.AddIssue("FUTURE_PERIOD", domain.SeverityWarning, "period_end is in the future", "period_end")
		}
		if end.Before(now.AddDate(-10, 0, 0)) {
			result.AddIssue("OLD_PERIOD", domain.SeverityInfo, "period_end is more than 10 years old", "period_end")
		}
	}

	currency := c.Currency
	if len(currency) != 3 || currency != strings.ToUpper(currency) || !isAlpha(currency) {
		result.AddIssue("CUR_FMT", domain.SeverityError, "currency is not exactly three uppercase letters", "currency")
	} else if !commonCurrencies[currency] {
		result.AddIssue("CUR_UNCOMMON", domain.SeverityInfo, "currency is outside the common-codes set", "currency")
	}

	sumMismatch(&result, t)

	return result
}

func sumMismatch(result *domain.ValidationResult, t parsers.Triple) {
	byAccount := make(map[string]domain.AccountType, len(t.Accounts))
	for _, a := range t.Accounts {
		byAccount[a.AccountID] = a.AccountType
	}
	var revSum, expSum float64
	for _, v := range t.Values {
		switch byAccount[v.AccountID] {
		case domain.AccountRevenue:
			revSum += v.Value
		case domain.AccountExpense:
			expSum += v.Value
		}
	}
	revMoney := domain.NewMoneyFromFloat(revSum)
	expMoney := domain.NewMoneyFromFloat(expSum)
	recRev := domain.NewMoneyFromFloat(t.Record.Revenue)
	recExp := domain.NewMoneyFromFloat(t.Record.Expenses)
	if domain.AbsDiff(revMoney, recRev).Cmp(balanceTolerance) > 0 || domain.AbsDiff(expMoney, recExp).Cmp(balanceTolerance) > 0 {
		result.AddIssue("SUM_MISMATCH", domain.SeverityError, "sum of typed account values does not match record totals within tolerance", "accounts")
	}
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// AccountHierarchy runs ACC_CYCLE, ACC_ORPHAN, and ACC_TYPE_MIX over a set
// of accounts, resolving parent references against both the accounts being
// ingested and, if provided, accounts already in the Store (the "optional
// current Store state for cross-check" spec.md §4.2 allows).
func AccountHierarchy(accounts []domain.Account, existing map[string]domain.Account) domain.ValidationResult {
	result := domain.ValidationResult{QualityScore: 1.0}

	byID := make(map[string]domain.Account, len(accounts)+len(existing))
	for id, a := range existing {
		byID[id] = a
	}
	for _, a := range accounts {
		byID[a.AccountID] = a
	}

	for _, a := range accounts {
		if a.ParentAccountID == "" {
			continue
		}
		parent, ok := byID[a.ParentAccountID]
		if !ok {
			result.AddIssue("ACC_ORPHAN", domain.SeverityError, "parent_account_id does not resolve to a known account", a.AccountID)
			continue
		}
		if !domain.SameFamily(a.AccountType, parent.AccountType) {
			result.AddIssue("ACC_TYPE_MIX", domain.SeverityWarning, "child account type family differs from parent", a.AccountID)
		}
		if hasCycle(a.AccountID, byID) {
			result.AddIssue("ACC_CYCLE", domain.SeverityError, "parent chain forms a cycle", a.AccountID)
		}
	}
	return result
}

func hasCycle(start string, byID map[string]domain.Account) bool {
	seen := map[string]bool{start: true}
	current := start
	for {
		acc, ok := byID[current]
		if !ok || acc.ParentAccountID == "" {
			return false
		}
		if seen[acc.ParentAccountID] {
			return true
		}
		seen[acc.ParentAccountID] = true
		current = acc.ParentAccountID
	}
}
