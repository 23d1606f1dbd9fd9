package store

import (
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-agent/internal/domain"
)

// financialRecordRow mirrors the teacher's TransactionRow style: bigquery
// tags on every field, NUMERIC columns bound to *big.Rat, civil.Date for
// pure dates, NullJSON for the opaque attribution blob.
type financialRecordRow struct {
	RecordID    string    `bigquery:"record_id"`
	Source      string    `bigquery:"source"`
	PeriodStart civil.Date `bigquery:"period_start"`
	PeriodEnd   civil.Date `bigquery:"period_end"`
	Currency    string    `bigquery:"currency"`

	Revenue   *big.Rat `bigquery:"revenue"`
	Expenses  *big.Rat `bigquery:"expenses"`
	NetProfit *big.Rat `bigquery:"net_profit"`

	RawData bigquery.NullJSON `bigquery:"raw_data"`

	CreatedTS time.Time `bigquery:"created_ts"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

func toFinancialRecordRow(r domain.FinancialRecord) (financialRecordRow, error) {
	raw, err := json.Marshal(r.RawData)
	if err != nil {
		return financialRecordRow{}, err
	}
	return financialRecordRow{
		RecordID:    r.ID,
		Source:      string(r.Source),
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		Currency:    r.Currency,
		Revenue:     r.Revenue.Rat(),
		Expenses:    r.Expenses.Rat(),
		NetProfit:   r.NetProfit.Rat(),
		RawData:     bigquery.NullJSON{JSONVal: string(raw), Valid: r.RawData != nil},
		CreatedTS:   r.CreatedAt,
		UpdatedTS:   r.UpdatedAt,
	}, nil
}

func fromFinancialRecordRow(row financialRecordRow) domain.FinancialRecord {
	var raw map[string]any
	if row.RawData.Valid {
		_ = json.Unmarshal([]byte(row.RawData.JSONVal), &raw)
	}
	return domain.FinancialRecord{
		ID:          row.RecordID,
		Source:      domain.SourceType(row.Source),
		PeriodStart: row.PeriodStart,
		PeriodEnd:   row.PeriodEnd,
		Currency:    row.Currency,
		Revenue:     domain.MoneyFromRat(row.Revenue),
		Expenses:    domain.MoneyFromRat(row.Expenses),
		NetProfit:   domain.MoneyFromRat(row.NetProfit),
		RawData:     raw,
		CreatedAt:   row.CreatedTS,
		UpdatedAt:   row.UpdatedTS,
	}
}

// accountRow mirrors the teacher's AccountRow shape, adapted to the forest
// model: parent_account_id replaces the flat institution/number fields.
type accountRow struct {
	AccountID       string              `bigquery:"account_id"`
	Name            string              `bigquery:"name"`
	AccountType     string              `bigquery:"account_type"`
	ParentAccountID bigquery.NullString `bigquery:"parent_account_id"`
	Source          string              `bigquery:"source"`
	Description     bigquery.NullString `bigquery:"description"`
	IsActive        bool                `bigquery:"is_active"`
	CreatedTS       time.Time           `bigquery:"created_ts"`
	UpdatedTS       time.Time           `bigquery:"updated_ts"`
}

func toAccountRow(a domain.Account, now time.Time) accountRow {
	return accountRow{
		AccountID:       a.AccountID,
		Name:            a.Name,
		AccountType:     string(a.AccountType),
		ParentAccountID: bigquery.NullString{StringVal: a.ParentAccountID, Valid: a.ParentAccountID != ""},
		Source:          string(a.Source),
		Description:     bigquery.NullString{StringVal: a.Description, Valid: a.Description != ""},
		IsActive:        a.IsActive,
		CreatedTS:       now,
		UpdatedTS:       now,
	}
}

func fromAccountRow(row accountRow) domain.Account {
	return domain.Account{
		AccountID:       row.AccountID,
		Name:            row.Name,
		AccountType:     domain.AccountType(row.AccountType),
		ParentAccountID: row.ParentAccountID.StringVal,
		Source:          domain.SourceType(row.Source),
		Description:     row.Description.StringVal,
		IsActive:        row.IsActive,
	}
}

// accountValueRow mirrors the teacher's flat-row-with-foreign-keys style.
type accountValueRow struct {
	FinancialRecordID string   `bigquery:"financial_record_id"`
	AccountID         string   `bigquery:"account_id"`
	Value             *big.Rat `bigquery:"value"`
}

func toAccountValueRow(v domain.AccountValue) accountValueRow {
	return accountValueRow{
		FinancialRecordID: v.FinancialRecordID,
		AccountID:         v.AccountID,
		Value:             v.Value.Rat(),
	}
}

func fromAccountValueRow(row accountValueRow) domain.AccountValue {
	return domain.AccountValue{
		FinancialRecordID: row.FinancialRecordID,
		AccountID:         row.AccountID,
		Value:             domain.MoneyFromRat(row.Value),
	}
}

// ingestionAuditRow mirrors spec.md §6's ingestion_audit table.
type ingestionAuditRow struct {
	BatchID    string    `bigquery:"batch_id"`
	File       string    `bigquery:"file"`
	Phase      string    `bigquery:"phase"`
	StartedTS  time.Time `bigquery:"started_at"`
	EndedTS    time.Time `bigquery:"ended_at"`
	Outcome    string    `bigquery:"outcome"`
	IssuesJSON bigquery.NullJSON `bigquery:"issues_json"`
}

func toIngestionAuditRow(e domain.AuditEntry) ingestionAuditRow {
	return ingestionAuditRow{
		BatchID:   e.BatchID,
		File:      e.File,
		Phase:     e.Phase,
		StartedTS: e.StartedAt,
		EndedTS:   e.EndedAt,
		Outcome:   e.Outcome,
		IssuesJSON: bigquery.NullJSON{
			JSONVal: e.IssueSummary,
			Valid:   e.IssueSummary != "",
		},
	}
}
