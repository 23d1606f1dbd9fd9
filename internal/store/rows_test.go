package store

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/domain"
)

func parseMoney(t *testing.T, s string) domain.Money {
	m, err := domain.ParseMoney(s)
	if err != nil {
		t.Fatalf("ParseMoney(%q) error: %v", s, err)
	}
	return m
}

func TestFinancialRecordRowRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r := domain.FinancialRecord{
		ID:          "abc123",
		Source:      domain.SourceDialectA,
		PeriodStart: civil.Date{Year: 2024, Month: 1, Day: 1},
		PeriodEnd:   civil.Date{Year: 2024, Month: 1, Day: 31},
		Currency:    "USD",
		Revenue:     parseMoney(t, "10000.00"),
		Expenses:    parseMoney(t, "6000.00"),
		NetProfit:   parseMoney(t, "4000.00"),
		RawData:     map[string]any{"note": "source doc"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	row, err := toFinancialRecordRow(r)
	if err != nil {
		t.Fatalf("toFinancialRecordRow() error = %v", err)
	}
	if row.RecordID != r.ID || row.Source != string(r.Source) || row.Currency != r.Currency {
		t.Errorf("row identity fields mismatch: %+v", row)
	}
	if !row.RawData.Valid {
		t.Error("expected RawData to be valid JSON")
	}

	back := fromFinancialRecordRow(row)
	if back.ID != r.ID || back.Source != r.Source || back.Currency != r.Currency {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.Revenue.Cmp(r.Revenue) != 0 {
		t.Errorf("Revenue round trip = %s, want %s", back.Revenue, r.Revenue)
	}
	if back.RawData["note"] != "source doc" {
		t.Errorf("RawData round trip = %v", back.RawData)
	}
}

func TestFinancialRecordRowNilRawData(t *testing.T) {
	r := domain.FinancialRecord{Revenue: domain.ZeroMoney(), Expenses: domain.ZeroMoney(), NetProfit: domain.ZeroMoney()}
	row, err := toFinancialRecordRow(r)
	if err != nil {
		t.Fatalf("toFinancialRecordRow() error = %v", err)
	}
	if row.RawData.Valid {
		t.Error("expected nil RawData to marshal to an invalid NullJSON, not an empty-but-valid one")
	}
}

func TestAccountRowRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	a := domain.Account{
		AccountID:       "dialecta_revenue_consulting",
		Name:            "Consulting Revenue",
		AccountType:     domain.AccountRevenue,
		ParentAccountID: "",
		Source:          domain.SourceDialectA,
		Description:     "",
		IsActive:        true,
	}
	row := toAccountRow(a, now)
	if row.ParentAccountID.Valid {
		t.Error("expected an empty ParentAccountID to become an invalid NullString (root account)")
	}
	back := fromAccountRow(row)
	if back.AccountID != a.AccountID || back.AccountType != a.AccountType || back.ParentAccountID != "" {
		t.Errorf("round trip mismatch: %+v", back)
	}

	child := domain.Account{AccountID: "child-1", ParentAccountID: "dialecta_revenue_consulting", AccountType: domain.AccountRevenue}
	childRow := toAccountRow(child, now)
	if !childRow.ParentAccountID.Valid || childRow.ParentAccountID.StringVal != "dialecta_revenue_consulting" {
		t.Errorf("expected a non-empty ParentAccountID to round trip, got %+v", childRow.ParentAccountID)
	}
}

func TestAccountValueRowRoundTrip(t *testing.T) {
	v := domain.AccountValue{FinancialRecordID: "rec-1", AccountID: "acc-1", Value: parseMoney(t, "1234.56")}
	row := toAccountValueRow(v)
	back := fromAccountValueRow(row)
	if back.FinancialRecordID != v.FinancialRecordID || back.AccountID != v.AccountID {
		t.Errorf("round trip identity mismatch: %+v", back)
	}
	if back.Value.Cmp(v.Value) != 0 {
		t.Errorf("Value round trip = %s, want %s", back.Value, v.Value)
	}
}

func TestIngestionAuditRowOmitsEmptyIssueSummary(t *testing.T) {
	e := domain.AuditEntry{BatchID: "b1", File: "f.json", Phase: "validate", Outcome: "success"}
	row := toIngestionAuditRow(e)
	if row.IssuesJSON.Valid {
		t.Error("expected an empty IssueSummary to produce an invalid NullJSON")
	}

	e.IssueSummary = `[{"code":"NEG_REV"}]`
	row = toIngestionAuditRow(e)
	if !row.IssuesJSON.Valid || row.IssuesJSON.JSONVal != e.IssueSummary {
		t.Errorf("expected a non-empty IssueSummary to round trip as valid JSON, got %+v", row.IssuesJSON)
	}
}
