package parsers

import "github.com/dvloznov/finance-agent/internal/domain"

// Detect inspects the top-level shape of a decoded JSON document and picks
// the dialect: a "Header"+"Columns"+"Rows" tabular-report shape, at the
// root or under a top-level "data" object, selects Dialect-A; a
// "data" array whose elements carry period bounds and category arrays
// selects Dialect-B. Anything else is ErrUnknownDialect. Grounded on
// spec.md §4.1's detector rule.
func Detect(raw map[string]any) (domain.SourceType, error) {
	if looksLikeDialectA(raw) {
		return domain.SourceDialectA, nil
	}
	if looksLikeDialectB(raw) {
		return domain.SourceDialectB, nil
	}
	return "", ErrUnknownDialect
}

func looksLikeDialectA(raw map[string]any) bool {
	body := dialectABody(raw)
	header := getMapField(body, "Header")
	columns := getMapField(body, "Columns")
	rows := getMapField(body, "Rows")
	return header != nil && columns != nil && rows != nil
}

// dialectABody unwraps the top-level "data" envelope real Dialect-A
// documents carry their Header/Columns/Rows under, falling back to the
// document root so a caller that already unwrapped it still works.
func dialectABody(raw map[string]any) map[string]any {
	if body := getMapField(raw, "data"); body != nil {
		return body
	}
	return raw
}

func looksLikeDialectB(raw map[string]any) bool {
	data := getSliceField(raw, "data")
	if len(data) == 0 {
		return false
	}
	first := asMap(data[0])
	if first == nil {
		return false
	}
	_, hasStart := first["period_start"]
	_, hasEnd := first["period_end"]
	if !hasStart || !hasEnd {
		return false
	}
	categories := []string{"revenue", "cost_of_goods_sold", "operating_expenses", "non_operating_expenses", "non_operating_revenue"}
	for _, c := range categories {
		if _, ok := first[c]; ok {
			return true
		}
	}
	return false
}
