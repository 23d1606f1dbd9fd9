package normalize

import "github.com/dvloznov/finance-agent/internal/domain"

// ConflictEntry is one attribution entry appended to the winning record's
// raw_data.conflicts[] slice.
type ConflictEntry struct {
	LosingSource domain.SourceType `json:"losing_source"`
	Field        string            `json:"field"`
	LosingValue  string            `json:"losing_value"`
	WinningValue string            `json:"winning_value"`
	Delta        string            `json:"delta"`
}

// Detect reports whether two records sharing the same key conflict:
// revenue/expense differing by more than the balance tolerance, or a
// currency mismatch after normalization. It does not itself compare
// net_profit — see ReconcileNetProfit.
func Detect(a, b domain.FinancialRecord) bool {
	if a.Currency != b.Currency {
		return true
	}
	if domain.AbsDiff(a.Revenue, b.Revenue).Cmp(balanceTolerance) > 0 {
		return true
	}
	if domain.AbsDiff(a.Expenses, b.Expenses).Cmp(balanceTolerance) > 0 {
		return true
	}
	return false
}

// conflictField reports which field Detect's checks would flag first for a,
// b, along with the losing/winning values to attribute it with. Mirrors
// Detect's own check order (currency, then revenue, then expenses) so the
// two never disagree about what conflicted.
func conflictField(winner, loser domain.FinancialRecord) (field, losingValue, winningValue, delta string) {
	if winner.Currency != loser.Currency {
		return "currency", loser.Currency, winner.Currency, ""
	}
	if domain.AbsDiff(winner.Revenue, loser.Revenue).Cmp(balanceTolerance) > 0 {
		return "revenue", loser.Revenue.String(), winner.Revenue.String(), domain.AbsDiff(winner.Revenue, loser.Revenue).String()
	}
	if domain.AbsDiff(winner.Expenses, loser.Expenses).Cmp(balanceTolerance) > 0 {
		return "expenses", loser.Expenses.String(), winner.Expenses.String(), domain.AbsDiff(winner.Expenses, loser.Expenses).String()
	}
	return "", "", "", ""
}

var balanceTolerance = mustParse("0.01")

func mustParse(s string) domain.Money {
	m, err := domain.ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ReconcileNetProfit implements "different net_profit for the same
// revenue/expenses is always resolved toward the balance-equation-
// consistent value" — this is deterministic, not source-priority-driven.
func ReconcileNetProfit(r domain.FinancialRecord) domain.FinancialRecord {
	if r.BalanceOK() {
		return r
	}
	r.NetProfit = r.Revenue.Sub(r.Expenses).Round2()
	return r
}

// ResolveNewPair merges two freshly-parsed records that share a key
// (typically from two different files in the same batch, in different
// dialects) into one, per spec.md §4.3: the higher-priority source's
// scalars win; the loser's data is retained as an audit trail in
// raw_data.conflicts[]; accounts are unioned by globally-unique id; values
// are retained tagged with the winner's record id.
func ResolveNewPair(a, b domain.FinancialRecord, aAccounts, bAccounts []domain.Account, aValues, bValues []domain.AccountValue, priority map[domain.SourceType]int) (domain.FinancialRecord, []domain.Account, []domain.AccountValue) {
	winner, loser := a, b
	winnerAccounts, loserAccounts := aAccounts, bAccounts
	winnerValues, loserValues := aValues, bValues
	if priority[b.Source] > priority[a.Source] {
		winner, loser = b, a
		winnerAccounts, loserAccounts = bAccounts, aAccounts
		winnerValues, loserValues = bValues, aValues
	}
	_ = loserValues // the loser's values are not persisted, only its scalar attribution

	if winner.RawData == nil {
		winner.RawData = map[string]any{}
	}
	conflicts, _ := winner.RawData["conflicts"].([]ConflictEntry)
	if field, losingValue, winningValue, delta := conflictField(winner, loser); field != "" {
		conflicts = append(conflicts, ConflictEntry{
			LosingSource: loser.Source,
			Field:        field,
			LosingValue:  losingValue,
			WinningValue: winningValue,
			Delta:        delta,
		})
	}
	winner.RawData["conflicts"] = conflicts
	winner = ReconcileNetProfit(winner)

	merged := unionAccounts(winnerAccounts, loserAccounts)
	// values must reference the winning record id
	rewritten := make([]domain.AccountValue, len(winnerValues))
	for i, v := range winnerValues {
		v.FinancialRecordID = winner.ID
		rewritten[i] = v
	}
	return winner, merged, rewritten
}

func unionAccounts(a, b []domain.Account) []domain.Account {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]domain.Account, 0, len(a)+len(b))
	for _, acc := range a {
		if !seen[acc.AccountID] {
			seen[acc.AccountID] = true
			out = append(out, acc)
		}
	}
	for _, acc := range b {
		if !seen[acc.AccountID] {
			seen[acc.AccountID] = true
			out = append(out, acc)
		}
	}
	return out
}

// ResolveAgainstExisting decides whether a newly normalized record should
// replace one already persisted for the same key: replace only if the
// incoming source outranks the existing one; otherwise keep the existing
// record and report an INFO issue for the caller to log.
func ResolveAgainstExisting(existing, incoming domain.FinancialRecord, priority map[domain.SourceType]int) (winner domain.FinancialRecord, replaced bool, info *domain.ValidationIssue) {
	if priority[incoming.Source] > priority[existing.Source] {
		return incoming, true, nil
	}
	return existing, false, &domain.ValidationIssue{
		Code:     "KEPT_EXISTING",
		Severity: domain.SeverityInfo,
		Message:  "incoming record's source does not outrank the persisted record; existing record kept",
		Field:    "source",
	}
}
