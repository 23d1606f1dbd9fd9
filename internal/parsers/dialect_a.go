package parsers

import (
	"strconv"
	"strings"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// DialectA parses column-major P&L reports: a header block, an ordered list
// of period columns, and a recursively nested row tree whose leaves carry
// one value per period column. Grounded on
// original_source/app/parsers/quickbooks_parser.py.
type DialectA struct{}

type periodColumn struct {
	Index int
	Title string
	Start string
	End   string
}

// keyword tables from spec.md §4.1, checked in this order (liability first,
// per the precedence the original implementation uses).
var (
	liabilityKeywords = []string{"payable", "loan", "debt", "liability", "accrued"}
	revenueKeywords   = []string{"income", "revenue", "sales", "service", "consulting"}
	expenseKeywords   = []string{"expense", "cost", "payroll", "rent", "marketing"}
	assetKeywords     = []string{"cash", "bank", "receivable", "inventory", "equipment"}
)

func classifyByName(name string) domain.AccountType {
	lower := strings.ToLower(name)
	for _, kw := range liabilityKeywords {
		if strings.Contains(lower, kw) {
			return domain.AccountLiability
		}
	}
	for _, kw := range revenueKeywords {
		if strings.Contains(lower, kw) {
			return domain.AccountRevenue
		}
	}
	for _, kw := range expenseKeywords {
		if strings.Contains(lower, kw) {
			return domain.AccountExpense
		}
	}
	for _, kw := range assetKeywords {
		if strings.Contains(lower, kw) {
			return domain.AccountAsset
		}
	}
	return domain.AccountOther
}

// classifyByGroupLabel maps a section header label to an AccountType when
// the group itself announces its meaning (e.g. "Income", "Expenses").
func classifyByGroupLabel(label string) (domain.AccountType, bool) {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "income") || strings.Contains(lower, "revenue"):
		return domain.AccountRevenue, true
	case strings.Contains(lower, "cost of goods") || strings.Contains(lower, "expense"):
		return domain.AccountExpense, true
	case strings.Contains(lower, "asset"):
		return domain.AccountAsset, true
	case strings.Contains(lower, "liabilit"):
		return domain.AccountLiability, true
	default:
		return "", false
	}
}

// Parse implements the Dialect-A algorithm and returns one Triple per
// period column found in the report.
func (DialectA) Parse(rawDoc map[string]any) ([]Triple, error) {
	raw := dialectABody(rawDoc)
	header := getMapField(raw, "Header")
	var headerIssues []domain.ValidationIssue
	currency := strings.ToUpper(getOptionalStringField(header, "Currency", ""))
	if currency == "" {
		currency = "USD"
		headerIssues = append(headerIssues, domain.ValidationIssue{
			Code: "CUR_DEFAULTED", Severity: domain.SeverityInfo,
			Message: "currency missing from header, defaulted to USD", Field: "currency",
		})
	}

	periods, err := parseColumns(raw)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, &ParseError{Reason: "Dialect-A document has no Money columns"}
	}

	revenueByPeriod := make(map[int]float64, len(periods))
	expenseByPeriod := make(map[int]float64, len(periods))
	var accounts []domain.Account
	valuesByPeriod := make(map[int][]Value, len(periods))
	issuesByPeriod := make(map[int][]domain.ValidationIssue, len(periods))
	seenAccountIDs := make(map[string]bool)

	rowsRoot := getMapField(raw, "Rows")
	rowList := getSliceField(rowsRoot, "Row")
	var walk func(rows []any, ancestorType domain.AccountType, hasAncestorType bool)
	walk = func(rows []any, ancestorType domain.AccountType, hasAncestorType bool) {
		for _, rv := range rows {
			row := asMap(rv)
			if row == nil {
				continue
			}
			if nested := getMapField(row, "Rows"); nested != nil {
				groupType := ancestorType
				hasGroupType := hasAncestorType
				if headerBlock := getMapField(row, "Header"); headerBlock != nil {
					if label := colDataLabel(headerBlock); label != "" {
						if t, ok := classifyByGroupLabel(label); ok {
							groupType, hasGroupType = t, true
						}
					}
				}
				walk(getSliceField(nested, "Row"), groupType, hasGroupType)
				continue
			}

			colData := getSliceField(row, "ColData")
			if len(colData) == 0 {
				continue
			}
			name := colDataValue(colData, 0)
			if name == "" || strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "total") {
				continue // skip empty/"TOTAL" summary rows per spec.md §4.1's error policy
			}

			accountType := ancestorType
			if !hasAncestorType {
				accountType = classifyByName(name)
			}

			accountID := colDataID(colData, 0)
			if accountID == "" {
				accountID = domain.GenerateAccountID("dialecta", string(accountType), name, seenAccountIDs)
			} else if seenAccountIDs[accountID] {
				// duplicate intrinsic id, disambiguate deterministically
				accountID = domain.GenerateAccountID("dialecta", string(accountType), name, seenAccountIDs)
			} else {
				seenAccountIDs[accountID] = true
			}

			accounts = append(accounts, domain.Account{
				AccountID:   accountID,
				Name:        name,
				AccountType: accountType,
				Source:      domain.SourceDialectA,
				IsActive:    true,
			})

			for _, p := range periods {
				colIdx := p.Index + 1 // ColData[0] is the label
				if colIdx >= len(colData) {
					continue
				}
				raw := colDataValue(colData, colIdx)
				f, ok := parseMoneyString(raw)
				if !ok && strings.TrimSpace(raw) != "" {
					// non-empty but unparseable: substitute zero and record
					// the WARNING spec.md §4.1's error policy requires.
					issuesByPeriod[p.Index] = append(issuesByPeriod[p.Index], domain.ValidationIssue{
						Code: "NONNUMERIC_FIELD", Severity: domain.SeverityWarning,
						Message: "value for " + name + " could not be parsed as a number; substituted zero", Field: accountID,
					})
				}
				valuesByPeriod[p.Index] = append(valuesByPeriod[p.Index], Value{AccountID: accountID, Value: f})
				switch accountType {
				case domain.AccountRevenue:
					revenueByPeriod[p.Index] += f
				case domain.AccountExpense:
					expenseByPeriod[p.Index] += f
				}
			}
		}
	}
	walk(rowList, "", false)

	triples := make([]Triple, 0, len(periods))
	for _, p := range periods {
		rev := revenueByPeriod[p.Index]
		exp := expenseByPeriod[p.Index]
		cand := Candidate{
			Source:        domain.SourceDialectA,
			PeriodStart:   p.Start,
			PeriodEnd:     p.End,
			Currency:      currency,
			Revenue:       rev,
			Expenses:      exp,
			Disambiguator: p.Title,
			RawData:       map[string]any{"column_title": p.Title},
			ParseIssues:   append(append([]domain.ValidationIssue{}, headerIssues...), issuesByPeriod[p.Index]...),
		}
		triples = append(triples, Triple{
			Record:   cand,
			Accounts: accounts, // shared account catalog; caller dedupes across periods
			Values:   valuesByPeriod[p.Index],
		})
	}
	return triples, nil
}

func parseColumns(raw map[string]any) ([]periodColumn, error) {
	columnsRoot := getMapField(raw, "Columns")
	colList := getSliceField(columnsRoot, "Column")
	var periods []periodColumn
	moneyIdx := 0
	for _, cv := range colList {
		col := asMap(cv)
		if col == nil {
			continue
		}
		if getOptionalStringField(col, "ColType", "") != "Money" {
			continue
		}
		title := getOptionalStringField(col, "ColTitle", "")
		var start, end string
		for _, mv := range getSliceField(col, "MetaData") {
			meta := asMap(mv)
			if meta == nil {
				continue
			}
			switch getOptionalStringField(meta, "Name", "") {
			case "StartDate":
				start = getOptionalStringField(meta, "Value", "")
			case "EndDate":
				end = getOptionalStringField(meta, "Value", "")
			}
		}
		if start == "" || end == "" {
			// missing required field: skip this subtree, per spec.md's error policy
			moneyIdx++
			continue
		}
		periods = append(periods, periodColumn{Index: moneyIdx, Title: title, Start: start, End: end})
		moneyIdx++
	}
	return periods, nil
}

func colDataValue(colData []any, idx int) string {
	if idx < 0 || idx >= len(colData) {
		return ""
	}
	m := asMap(colData[idx])
	if m == nil {
		return ""
	}
	return getOptionalStringField(m, "value", "")
}

func colDataID(colData []any, idx int) string {
	if idx < 0 || idx >= len(colData) {
		return ""
	}
	m := asMap(colData[idx])
	if m == nil {
		return ""
	}
	return getOptionalStringField(m, "id", "")
}

func colDataLabel(header map[string]any) string {
	return colDataValue(getSliceField(header, "ColData"), 0)
}

func parseMoneyString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
