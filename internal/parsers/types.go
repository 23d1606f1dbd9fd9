package parsers

import (
	"github.com/dvloznov/finance-agent/internal/domain"
)

// Candidate is a not-yet-normalized FinancialRecord: dates are still raw
// strings (the Normalizer parses them into civil.Date) and RawData carries
// whatever attribution the parser wants preserved for audit.
type Candidate struct {
	Source        domain.SourceType
	PeriodStart   string
	PeriodEnd     string
	Currency      string
	Revenue       float64
	Expenses      float64
	NetProfit     float64
	HasNetProfit  bool // false when the source has no explicit net_profit; Normalizer derives it
	Disambiguator string
	RawData       map[string]any
	ParseIssues   []domain.ValidationIssue
}

// Value is one account's contribution to one Candidate, keyed positionally
// (the Candidate hasn't been assigned a FinancialRecord.ID yet).
type Value struct {
	AccountID string
	Value     float64
}

// Triple is the parser's unit of output: one candidate record plus the
// accounts and values discovered while parsing it.
type Triple struct {
	Record   Candidate
	Accounts []domain.Account
	Values   []Value
}

// ParseError is a fatal, non-retryable parse failure (malformed JSON or a
// document matching neither dialect).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse error: " + e.Reason }

// ErrUnknownDialect is returned by Detect when the document matches neither
// known shape.
var ErrUnknownDialect = &ParseError{Reason: "UnknownDialect: document matches neither Dialect-A nor Dialect-B"}
