package parsers

import (
	"testing"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// sampleDialectADoc mirrors the real shape a report file carries: Header/
// Columns/Rows nested under a top-level "data" object, per
// original_source/app/parsers/quickbooks_parser.py's parse_data.
func sampleDialectADoc() map[string]any {
	return map[string]any{
		"data": map[string]any{
			"Header": map[string]any{"Currency": "USD"},
			"Columns": map[string]any{
				"Column": []any{
					map[string]any{"ColTitle": "", "ColType": "Account"},
					map[string]any{
						"ColTitle": "Jan 2024",
						"ColType":  "Money",
						"MetaData": []any{
							map[string]any{"Name": "StartDate", "Value": "2024-01-01"},
							map[string]any{"Name": "EndDate", "Value": "2024-01-31"},
						},
					},
				},
			},
			"Rows": map[string]any{
				"Row": []any{
					map[string]any{
						"Header": map[string]any{"ColData": []any{map[string]any{"value": "Income"}}},
						"Rows": map[string]any{
							"Row": []any{
								map[string]any{"ColData": []any{
									map[string]any{"value": "Sales", "id": "acc-1"},
									map[string]any{"value": "1000.00"},
								}},
								map[string]any{"ColData": []any{
									map[string]any{"value": "Total Income"},
									map[string]any{"value": "1000.00"},
								}},
							},
						},
					},
					map[string]any{
						"Header": map[string]any{"ColData": []any{map[string]any{"value": "Expenses"}}},
						"Rows": map[string]any{
							"Row": []any{
								map[string]any{"ColData": []any{
									map[string]any{"value": "Rent"},
									map[string]any{"value": "400.00"},
								}},
							},
						},
					},
				},
			},
		},
	}
}

func TestDialectAParse(t *testing.T) {
	triples, err := DialectA{}.Parse(sampleDialectADoc())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("len(triples) = %d, want 1", len(triples))
	}

	tri := triples[0]
	if tri.Record.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", tri.Record.Currency)
	}
	if tri.Record.PeriodStart != "2024-01-01" || tri.Record.PeriodEnd != "2024-01-31" {
		t.Errorf("period = %s..%s, want 2024-01-01..2024-01-31", tri.Record.PeriodStart, tri.Record.PeriodEnd)
	}
	if tri.Record.Revenue != 1000.00 {
		t.Errorf("Revenue = %v, want 1000.00", tri.Record.Revenue)
	}
	if tri.Record.Expenses != 400.00 {
		t.Errorf("Expenses = %v, want 400.00", tri.Record.Expenses)
	}

	// the "Total Income" row must be skipped (spec.md §4.1 error policy),
	// leaving exactly two accounts: Sales and Rent.
	if len(tri.Accounts) != 2 {
		t.Fatalf("len(Accounts) = %d, want 2", len(tri.Accounts))
	}
	var sales, rent *domain.Account
	for i := range tri.Accounts {
		switch tri.Accounts[i].Name {
		case "Sales":
			sales = &tri.Accounts[i]
		case "Rent":
			rent = &tri.Accounts[i]
		}
	}
	if sales == nil || sales.AccountID != "acc-1" || sales.AccountType != domain.AccountRevenue {
		t.Errorf("Sales account = %+v", sales)
	}
	if rent == nil || rent.AccountType != domain.AccountExpense {
		t.Errorf("Rent account = %+v", rent)
	}
}

func TestDialectAParseDefaultsCurrency(t *testing.T) {
	doc := sampleDialectADoc()
	delete(doc["data"].(map[string]any)["Header"].(map[string]any), "Currency")

	triples, err := DialectA{}.Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if triples[0].Record.Currency != "USD" {
		t.Errorf("Currency = %q, want USD default", triples[0].Record.Currency)
	}
	found := false
	for _, iss := range triples[0].Record.ParseIssues {
		if iss.Code == "CUR_DEFAULTED" && iss.Severity == domain.SeverityInfo {
			found = true
		}
	}
	if !found {
		t.Errorf("expected CUR_DEFAULTED INFO issue, got %+v", triples[0].Record.ParseIssues)
	}
}

func TestDialectAParseNonNumericValueWarns(t *testing.T) {
	doc := sampleDialectADoc()
	rows := doc["data"].(map[string]any)["Rows"].(map[string]any)["Row"].([]any)
	incomeGroup := rows[0].(map[string]any)["Rows"].(map[string]any)["Row"].([]any)
	salesRow := incomeGroup[0].(map[string]any)["ColData"].([]any)
	salesRow[1] = map[string]any{"value": "N/A"}

	triples, err := DialectA{}.Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if triples[0].Record.Revenue != 0 {
		t.Errorf("Revenue = %v, want 0 (non-parseable substituted with zero)", triples[0].Record.Revenue)
	}
	found := false
	for _, iss := range triples[0].Record.ParseIssues {
		if iss.Code == "NONNUMERIC_FIELD" && iss.Severity == domain.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected NONNUMERIC_FIELD WARNING issue, got %+v", triples[0].Record.ParseIssues)
	}
}

func TestDialectAParseNoMoneyColumns(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"Header":  map[string]any{"Currency": "USD"},
			"Columns": map[string]any{"Column": []any{map[string]any{"ColType": "Account"}}},
			"Rows":    map[string]any{"Row": []any{}},
		},
	}
	if _, err := (DialectA{}).Parse(doc); err == nil {
		t.Error("expected error for document with no Money columns")
	}
}

func TestClassifyByName(t *testing.T) {
	tests := []struct {
		name string
		want domain.AccountType
	}{
		{"Consulting Income", domain.AccountRevenue},
		{"Office Rent Expense", domain.AccountExpense},
		{"Accounts Receivable", domain.AccountAsset},
		{"Loan Payable", domain.AccountLiability},
		{"Accrued Liabilities", domain.AccountLiability},
		{"Miscellaneous", domain.AccountOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyByName(tt.name); got != tt.want {
				t.Errorf("classifyByName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
