package parsers

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// DialectB parses period-major records: a top-level "data" array whose
// elements carry explicit period bounds and five category line-item trees.
// Values are a partition, not a rollup — a node's own value is the value
// attributed to that node; children are walked only to discover their own
// values and to build the account tree (see SPEC_FULL.md §9). Grounded on
// original_source/app/parsers/rootfi_parser.py.
type DialectB struct{}

type categorySpec struct {
	key         string
	accountType domain.AccountType
	isRevenue   bool
}

var dialectBCategories = []categorySpec{
	{key: "revenue", accountType: domain.AccountRevenue, isRevenue: true},
	{key: "non_operating_revenue", accountType: domain.AccountRevenue, isRevenue: true},
	{key: "cost_of_goods_sold", accountType: domain.AccountExpense, isRevenue: false},
	{key: "operating_expenses", accountType: domain.AccountExpense, isRevenue: false},
	{key: "non_operating_expenses", accountType: domain.AccountExpense, isRevenue: false},
}

// Parse implements the Dialect-B algorithm and returns one Triple per
// element of the "data" array.
func (DialectB) Parse(raw map[string]any) ([]Triple, error) {
	data := getSliceField(raw, "data")
	if len(data) == 0 {
		return nil, &ParseError{Reason: "Dialect-B document has an empty or missing data array"}
	}

	triples := make([]Triple, 0, len(data))
	for _, rv := range data {
		record := asMap(rv)
		if record == nil {
			continue
		}
		t, err := parseDialectBRecord(record)
		if err != nil {
			// missing required field on this element: skip the subtree;
			// the caller sees one fewer triple. No issue is recorded for
			// the skipped element.
			continue
		}
		triples = append(triples, t)
	}
	if len(triples) == 0 {
		return nil, &ParseError{Reason: "Dialect-B document produced no valid records"}
	}
	return triples, nil
}

func parseDialectBRecord(record map[string]any) (Triple, error) {
	periodStart, err := getStringField(record, "period_start")
	if err != nil {
		return Triple{}, err
	}
	periodEnd, err := getStringField(record, "period_end")
	if err != nil {
		return Triple{}, err
	}

	currency := strings.ToUpper(getOptionalStringField(record, "currency_id", ""))
	var issues []domain.ValidationIssue
	if currency == "" {
		currency = "USD"
		issues = append(issues, domain.ValidationIssue{
			Code: "CUR_DEFAULTED", Severity: domain.SeverityInfo,
			Message: "currency_id missing, defaulted to USD", Field: "currency",
		})
	}

	var accounts []domain.Account
	var values []Value
	seenAccountIDs := make(map[string]bool)
	var revenueTotal, expenseTotal float64

	for _, cat := range dialectBCategories {
		items := getSliceField(record, cat.key)
		for _, iv := range items {
			item := asMap(iv)
			if item == nil {
				continue
			}
			sum := walkLineItem(item, cat, &accounts, &values, seenAccountIDs, &issues)
			if cat.isRevenue {
				revenueTotal += sum
			} else {
				expenseTotal += sum
			}
		}
	}

	disambiguator := ""
	if rid, ok := record["rootfi_id"]; ok {
		disambiguator = fmt.Sprintf("%v", rid)
	}

	cand := Candidate{
		Source:        domain.SourceDialectB,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Currency:      currency,
		Revenue:       revenueTotal,
		Expenses:      expenseTotal,
		Disambiguator: disambiguator,
		RawData:       map[string]any{"rootfi_id": disambiguator},
		ParseIssues:   issues,
	}
	// net_profit is sometimes supplied explicitly alongside the category
	// arrays rather than always being derivable from them; when present it
	// is kept as-is so the Validator's BAL_EQ rule can catch a genuine
	// mismatch instead of one manufactured by always deriving it.
	if np, ok := getOptionalFloat64Field(record, "net_profit", 0); ok {
		cand.NetProfit = np
		cand.HasNetProfit = true
	}
	return Triple{Record: cand, Accounts: accounts, Values: values}, nil
}

// walkLineItem records the node's own value (partition semantics: the
// value is NOT re-derived by summing children) and recurses into
// "line_items" only to discover further accounts/values. It returns the
// node's own value so the caller can accumulate the category total.
func walkLineItem(item map[string]any, cat categorySpec, accounts *[]domain.Account, values *[]Value, seen map[string]bool, issues *[]domain.ValidationIssue) float64 {
	name := getOptionalStringField(item, "name", "")
	ownValue, ok := getOptionalFloat64Field(item, "value", 0)
	if !ok {
		if _, present := item["value"]; present {
			// present but unparseable: substitute zero and record the
			// WARNING spec.md §4.1's error policy requires.
			*issues = append(*issues, domain.ValidationIssue{
				Code: "NONNUMERIC_FIELD", Severity: domain.SeverityWarning,
				Message: "value for " + name + " could not be parsed as a number; substituted zero", Field: name,
			})
		}
	}

	accountID := getOptionalStringField(item, "account_id", "")
	if accountID == "" {
		accountID = domain.GenerateAccountID("dialectb", cat.key, name, seen)
	} else if seen[accountID] {
		accountID = domain.GenerateAccountID("dialectb", cat.key, name, seen)
	} else {
		seen[accountID] = true
	}

	*accounts = append(*accounts, domain.Account{
		AccountID:   accountID,
		Name:        name,
		AccountType: cat.accountType,
		Source:      domain.SourceDialectB,
		IsActive:    true,
	})
	*values = append(*values, Value{AccountID: accountID, Value: ownValue})

	for _, nv := range getSliceField(item, "line_items") {
		nested := asMap(nv)
		if nested == nil {
			continue
		}
		// nested totals are already reflected in the parent's own value
		// (see SPEC_FULL.md §9); the recursive call's return is discarded
		// on purpose.
		walkLineItem(nested, cat, accounts, values, seen, issues)
	}

	return ownValue
}
