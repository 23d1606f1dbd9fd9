// Package domain holds the unified entities shared by the ingestion
// pipeline and the query/agent surfaces: FinancialRecord, Account,
// AccountValue, and the enums and validation types that travel with them.
package domain

import (
	"cloud.google.com/go/civil"
	"time"
)

// SourceType identifies which JSON dialect a record originated from.
type SourceType string

const (
	SourceDialectA SourceType = "DialectA"
	SourceDialectB SourceType = "DialectB"
)

// DefaultSourcePriority is the static conflict-resolution priority map,
// grounded on original_source/app/services/validation.py's source_priority.
// Config.SourcePriority defaults to this but may override it.
func DefaultSourcePriority() map[SourceType]int {
	return map[SourceType]int{
		SourceDialectA: 2,
		SourceDialectB: 1,
	}
}

// AccountType is the broad classification of an account.
type AccountType string

const (
	AccountRevenue   AccountType = "Revenue"
	AccountExpense   AccountType = "Expense"
	AccountAsset     AccountType = "Asset"
	AccountLiability AccountType = "Liability"
	AccountOther     AccountType = "Other"
)

// SameFamily reports whether two account types belong to the same broad
// family for ACC_TYPE_MIX purposes. Revenue and Expense are each their own
// family and every other type is a family of one, so over the current
// AccountType set this is the same as a == b.
func SameFamily(a, b AccountType) bool {
	if a == b {
		return true
	}
	fam := func(t AccountType) AccountType {
		switch t {
		case AccountRevenue:
			return AccountRevenue
		case AccountExpense:
			return AccountExpense
		default:
			return t
		}
	}
	return fam(a) == fam(b)
}

// FinancialRecord is an aggregate per (source, period, currency).
type FinancialRecord struct {
	ID             string
	Source         SourceType
	PeriodStart    civil.Date
	PeriodEnd      civil.Date
	Currency       string
	Revenue        Money
	Expenses       Money
	NetProfit      Money
	RawData        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BalanceOK reports whether |net_profit - (revenue - expenses)| <= 0.01.
func (r FinancialRecord) BalanceOK() bool {
	expected := r.Revenue.Sub(r.Expenses)
	diff := AbsDiff(r.NetProfit, expected)
	tolerance, _ := ParseMoney("0.01")
	return diff.Cmp(tolerance) <= 0
}

// Key is the conflict-detection / uniqueness key: (period_start, period_end,
// currency) — source-agnostic, per spec.md §3 and §4.3.
type RecordKey struct {
	PeriodStart civil.Date
	PeriodEnd   civil.Date
	Currency    string
}

func (r FinancialRecord) Key() RecordKey {
	return RecordKey{PeriodStart: r.PeriodStart, PeriodEnd: r.PeriodEnd, Currency: r.Currency}
}

// Account is a node in the account forest.
type Account struct {
	AccountID       string
	Name            string
	AccountType     AccountType
	ParentAccountID string // empty means root
	Source          SourceType
	Description     string
	IsActive        bool
}

// AccountValue is one account's contribution to one record.
type AccountValue struct {
	FinancialRecordID string
	AccountID         string
	Value             Money
}

// ValidationSeverity ranks how serious a validation issue is.
type ValidationSeverity string

const (
	SeverityInfo     ValidationSeverity = "INFO"
	SeverityWarning  ValidationSeverity = "WARNING"
	SeverityError    ValidationSeverity = "ERROR"
	SeverityCritical ValidationSeverity = "CRITICAL"
)

// severityWeight implements the quality-score formula from spec.md §4.2.
func severityWeight(s ValidationSeverity) float64 {
	switch s {
	case SeverityInfo:
		return 0.05
	case SeverityWarning:
		return 0.15
	case SeverityError:
		return 0.35
	case SeverityCritical:
		return 0.50
	default:
		return 0
	}
}

// ValidationIssue is one rule violation.
type ValidationIssue struct {
	Code     string
	Severity ValidationSeverity
	Message  string
	Field    string
}

// ValidationResult is the outcome of running the rule set over one
// intermediate triple.
type ValidationResult struct {
	Issues       []ValidationIssue
	QualityScore float64
}

// IsValid reports whether the result contains no ERROR or CRITICAL issues.
func (v ValidationResult) IsValid() bool {
	for _, iss := range v.Issues {
		if iss.Severity == SeverityError || iss.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// AddIssue appends an issue and recomputes QualityScore.
func (v *ValidationResult) AddIssue(code string, severity ValidationSeverity, message, field string) {
	v.Issues = append(v.Issues, ValidationIssue{Code: code, Severity: severity, Message: message, Field: field})
	v.QualityScore = computeQualityScore(v.Issues)
}

func computeQualityScore(issues []ValidationIssue) float64 {
	score := 1.0
	for _, iss := range issues {
		score -= severityWeight(iss.Severity)
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// IngestionStatus tracks a single file's progress through the orchestrator.
type IngestionStatus string

const (
	StatusPending           IngestionStatus = "Pending"
	StatusProcessing        IngestionStatus = "Processing"
	StatusCompleted         IngestionStatus = "Completed"
	StatusFailed            IngestionStatus = "Failed"
	StatusPartiallyCompleted IngestionStatus = "PartiallyCompleted"
)

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path             string
	Status           IngestionStatus
	RecordsProcessed int
	RecordsCreated   int
	RecordsUpdated   int
	RecordsRejected  int
	ValidationResult *ValidationResult
	ErrorMessage     string
	Duration         time.Duration
}

// BatchResult is the outcome of ingesting a set of files together.
type BatchResult struct {
	BatchID        string
	Status         IngestionStatus
	Files          []FileResult
	FilesSucceeded int
	FilesFailed    int
	Duration       time.Duration
}

// AuditEntry is one row of the ingestion_audit table.
type AuditEntry struct {
	BatchID     string
	File        string
	Phase       string
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     string
	IssueSummary string
}
