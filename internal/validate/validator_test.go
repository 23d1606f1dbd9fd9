package validate

import (
	"testing"
	"time"

	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/parsers"
)

func baseCandidate() parsers.Candidate {
	return parsers.Candidate{
		Source:      domain.SourceDialectA,
		PeriodStart: "2024-01-01",
		PeriodEnd:   "2024-01-31",
		Currency:    "USD",
		Revenue:     10000.00,
		Expenses:    6000.00,
	}
}

// triple builds a Triple whose Accounts/Values exactly back c's Revenue and
// Expenses totals, so SUM_MISMATCH only fires in tests that deliberately
// construct a mismatch (TestRecordSumMismatch).
func triple(c parsers.Candidate) parsers.Triple {
	var accounts []domain.Account
	var values []parsers.Value
	if c.Revenue != 0 {
		accounts = append(accounts, domain.Account{AccountID: "rev-1", AccountType: domain.AccountRevenue})
		values = append(values, parsers.Value{AccountID: "rev-1", Value: c.Revenue})
	}
	if c.Expenses != 0 {
		accounts = append(accounts, domain.Account{AccountID: "exp-1", AccountType: domain.AccountExpense})
		values = append(values, parsers.Value{AccountID: "exp-1", Value: c.Expenses})
	}
	return parsers.Triple{Record: c, Accounts: accounts, Values: values}
}

func hasCode(result domain.ValidationResult, code string) bool {
	for _, iss := range result.Issues {
		if iss.Code == code {
			return true
		}
	}
	return false
}

func TestRecordPerfectRecordIsValid(t *testing.T) {
	result := Record(triple(baseCandidate()))
	if !result.IsValid() {
		t.Fatalf("expected valid result, got issues: %+v", result.Issues)
	}
	if result.QualityScore != 1.0 {
		t.Errorf("QualityScore = %v, want 1.0", result.QualityScore)
	}
}

func TestRecordBalanceEquationViolation(t *testing.T) {
	// scenario 2 from spec.md §8: revenue=100, expenses=40, net_profit=50
	// (true diff is 60).
	c := baseCandidate()
	c.Revenue, c.Expenses = 100, 40
	c.NetProfit, c.HasNetProfit = 50, true

	result := Record(triple(c))
	if result.IsValid() {
		t.Fatal("expected invalid result for imbalanced record")
	}
	if !hasCode(result, "BAL_EQ") {
		t.Errorf("expected BAL_EQ issue, got %+v", result.Issues)
	}
	for _, iss := range result.Issues {
		if iss.Code == "BAL_EQ" && iss.Severity != domain.SeverityError {
			t.Errorf("BAL_EQ severity = %v, want ERROR", iss.Severity)
		}
	}
}

func TestRecordNegativeRevenueAndExpenses(t *testing.T) {
	c := baseCandidate()
	c.Revenue, c.Expenses = -100, -50
	c.NetProfit, c.HasNetProfit = -50, true

	result := Record(triple(c))
	if !hasCode(result, "NEG_REV") {
		t.Error("expected NEG_REV issue")
	}
	if !hasCode(result, "NEG_EXP") {
		t.Error("expected NEG_EXP issue")
	}
	// warnings alone must not invalidate the record
	if !result.IsValid() {
		t.Error("WARNING-only issues must not flip is_valid to false")
	}
}

func TestRecordHighValueWarning(t *testing.T) {
	c := baseCandidate()
	c.Revenue = 2e12
	c.Expenses = 0
	c.NetProfit, c.HasNetProfit = 2e12, true

	result := Record(triple(c))
	if !hasCode(result, "HIGH_VAL") {
		t.Errorf("expected HIGH_VAL issue, got %+v", result.Issues)
	}
}

func TestRecordDateRangeViolation(t *testing.T) {
	c := baseCandidate()
	c.PeriodStart, c.PeriodEnd = "2024-02-01", "2024-01-01"

	result := Record(triple(c))
	if !hasCode(result, "DATE_RANGE") {
		t.Error("expected DATE_RANGE issue")
	}
	if result.IsValid() {
		t.Error("DATE_RANGE is an ERROR and must invalidate the record")
	}
}

func TestRecordSameDayPeriodIsAccepted(t *testing.T) {
	c := baseCandidate()
	c.PeriodStart, c.PeriodEnd = "2024-01-01", "2024-01-01"

	result := Record(triple(c))
	if hasCode(result, "DATE_RANGE") {
		t.Error("period_end == period_start must be accepted, per spec.md §8")
	}
}

func TestRecordFuturePeriodWarns(t *testing.T) {
	c := baseCandidate()
	future := time.Now().UTC().AddDate(1, 0, 0)
	c.PeriodStart = future.AddDate(0, 0, -1).Format(dateLayout)
	c.PeriodEnd = future.Format(dateLayout)
	c.Revenue, c.Expenses, c.NetProfit, c.HasNetProfit = 100, 50, 50, true

	result := Record(triple(c))
	if !hasCode(result, "FUTURE_PERIOD") {
		t.Error("expected FUTURE_PERIOD issue")
	}
	// future periods are WARNING, not rejected, per spec.md §8
	if !result.IsValid() {
		t.Error("FUTURE_PERIOD must not invalidate the record")
	}
}

func TestRecordOldPeriodInfo(t *testing.T) {
	c := baseCandidate()
	old := time.Now().UTC().AddDate(-11, 0, 0)
	c.PeriodStart = old.AddDate(0, 0, -30).Format(dateLayout)
	c.PeriodEnd = old.Format(dateLayout)
	c.Revenue, c.Expenses, c.NetProfit, c.HasNetProfit = 100, 50, 50, true

	result := Record(triple(c))
	if !hasCode(result, "OLD_PERIOD") {
		t.Error("expected OLD_PERIOD issue")
	}
}

func TestRecordCurrencyFormatAndUncommon(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		wantCode string
	}{
		{"lowercase", "usd", "CUR_FMT"},
		{"too long", "USDX", "CUR_FMT"},
		{"has digits", "US1", "CUR_FMT"},
		{"uncommon but well-formed", "ZWL", "CUR_UNCOMMON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCandidate()
			c.Currency = tt.currency
			result := Record(triple(c))
			if !hasCode(result, tt.wantCode) {
				t.Errorf("currency %q: expected %s issue, got %+v", tt.currency, tt.wantCode, result.Issues)
			}
		})
	}
}

func TestRecordSumMismatch(t *testing.T) {
	c := baseCandidate()
	tr := parsers.Triple{
		Record: c,
		Accounts: []domain.Account{
			{AccountID: "rev-1", AccountType: domain.AccountRevenue},
		},
		Values: []parsers.Value{
			{AccountID: "rev-1", Value: 1.0}, // far from Revenue=10000.00
		},
	}
	result := Record(tr)
	if !hasCode(result, "SUM_MISMATCH") {
		t.Errorf("expected SUM_MISMATCH issue, got %+v", result.Issues)
	}
}

func TestRecordQualityScoreFormula(t *testing.T) {
	// one WARNING (NEG_REV) plus one INFO (CUR_UNCOMMON): 1 - 0.15 - 0.05 = 0.80
	c := baseCandidate()
	c.Revenue = -100
	c.Expenses = 0
	c.NetProfit, c.HasNetProfit = -100, true
	c.Currency = "ZWL"

	result := Record(triple(c))
	if got, want := result.QualityScore, 0.80; abs(got-want) > 1e-9 {
		t.Errorf("QualityScore = %v, want %v (issues: %+v)", got, want, result.Issues)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func TestAccountHierarchyOrphan(t *testing.T) {
	accounts := []domain.Account{
		{AccountID: "a1", AccountType: domain.AccountRevenue, ParentAccountID: "missing"},
	}
	result := AccountHierarchy(accounts, nil)
	if !hasCode(result, "ACC_ORPHAN") {
		t.Errorf("expected ACC_ORPHAN issue, got %+v", result.Issues)
	}
}

func TestAccountHierarchyCycle(t *testing.T) {
	accounts := []domain.Account{
		{AccountID: "a1", AccountType: domain.AccountRevenue, ParentAccountID: "a2"},
		{AccountID: "a2", AccountType: domain.AccountRevenue, ParentAccountID: "a1"},
	}
	result := AccountHierarchy(accounts, nil)
	if !hasCode(result, "ACC_CYCLE") {
		t.Errorf("expected ACC_CYCLE issue, got %+v", result.Issues)
	}
}

func TestAccountHierarchyTypeMix(t *testing.T) {
	existing := map[string]domain.Account{
		"parent": {AccountID: "parent", AccountType: domain.AccountRevenue},
	}
	accounts := []domain.Account{
		{AccountID: "child", AccountType: domain.AccountExpense, ParentAccountID: "parent"},
	}
	result := AccountHierarchy(accounts, existing)
	if !hasCode(result, "ACC_TYPE_MIX") {
		t.Errorf("expected ACC_TYPE_MIX issue, got %+v", result.Issues)
	}
}

func TestAccountHierarchyValidTree(t *testing.T) {
	existing := map[string]domain.Account{
		"parent": {AccountID: "parent", AccountType: domain.AccountRevenue},
	}
	accounts := []domain.Account{
		{AccountID: "child", AccountType: domain.AccountRevenue, ParentAccountID: "parent"},
	}
	result := AccountHierarchy(accounts, existing)
	if len(result.Issues) != 0 {
		t.Errorf("expected no issues for a valid same-family tree, got %+v", result.Issues)
	}
}
