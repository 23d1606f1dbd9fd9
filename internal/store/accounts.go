package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-agent/internal/domain"
	"google.golang.org/api/iterator"
)

// UpsertAccounts inserts any account_id not already known, and leaves
// existing accounts untouched (the account forest is additive: a name or
// parent never changes once first observed, per spec.md §4.4's
// find_accounts/account_hierarchy design notes). Mirrors the teacher's
// UpsertAccount find-then-insert shape, batched.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	known, err := s.knownAccountIDs(ctx, accountIDsOf(accounts))
	if err != nil {
		return fmt.Errorf("store.UpsertAccounts: %w", err)
	}
	now := time.Now().UTC()
	var toInsert []accountRow
	for _, a := range accounts {
		if known[a.AccountID] {
			continue
		}
		toInsert = append(toInsert, toAccountRow(a, now))
		known[a.AccountID] = true // dedupe within this same batch
	}
	if len(toInsert) == 0 {
		return nil
	}
	inserter := s.client.Dataset(s.datasetID).Table(TableAccounts).Inserter()
	if err := inserter.Put(ctx, toInsert); err != nil {
		return classify(err)
	}
	return nil
}

func accountIDsOf(accounts []domain.Account) []string {
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.AccountID
	}
	return ids
}

func (s *Store) knownAccountIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	query := s.client.Query(fmt.Sprintf(`
		SELECT account_id FROM %s WHERE account_id IN UNNEST(@ids)
	`, s.table(TableAccounts)))
	query.Parameters = []bigquery.QueryParameter{{Name: "ids", Value: ids}}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("knownAccountIDs: reading: %w", err)
	}
	for {
		var row struct {
			AccountID string `bigquery:"account_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("knownAccountIDs: iterating: %w", err)
		}
		known[row.AccountID] = true
	}
	return known, nil
}

// GetAccountsByIDs fetches the persisted accounts for a set of ids, keyed
// by account_id, for cross-checking a newly ingested batch's parent
// references against what the Store already knows (validate.AccountHierarchy's
// "existing" argument). Ids not found in the Store are simply absent from
// the result.
func (s *Store) GetAccountsByIDs(ctx context.Context, ids []string) (map[string]domain.Account, error) {
	out := make(map[string]domain.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := s.client.Query(fmt.Sprintf(`
		SELECT account_id, name, account_type, parent_account_id, source,
		       description, is_active
		FROM %s WHERE account_id IN UNNEST(@ids)
	`, s.table(TableAccounts)))
	query.Parameters = []bigquery.QueryParameter{{Name: "ids", Value: ids}}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.GetAccountsByIDs: reading: %w", err)
	}
	for {
		var row accountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store.GetAccountsByIDs: iterating: %w", err)
		}
		a := fromAccountRow(row)
		out[a.AccountID] = a
	}
	return out, nil
}

// AccountFilter narrows FindAccounts; zero values are unfiltered.
type AccountFilter struct {
	AccountType domain.AccountType
	Source      domain.SourceType
	ActiveOnly  bool
}

// FindAccounts lists accounts matching the filter, per spec.md §4.4's
// find_accounts operation.
func (s *Store) FindAccounts(ctx context.Context, f AccountFilter) ([]domain.Account, error) {
	clauses := "WHERE 1=1"
	params := []bigquery.QueryParameter{}
	if f.AccountType != "" {
		clauses += " AND account_type = @accountType"
		params = append(params, bigquery.QueryParameter{Name: "accountType", Value: string(f.AccountType)})
	}
	if f.Source != "" {
		clauses += " AND source = @source"
		params = append(params, bigquery.QueryParameter{Name: "source", Value: string(f.Source)})
	}
	if f.ActiveOnly {
		clauses += " AND is_active = TRUE"
	}
	q := s.client.Query(fmt.Sprintf(`
		SELECT account_id, name, account_type, parent_account_id, source,
		       description, is_active
		FROM %s
		%s
		ORDER BY account_id
	`, s.table(TableAccounts), clauses))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.FindAccounts: reading: %w", err)
	}
	var out []domain.Account
	for {
		var row accountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store.FindAccounts: iterating: %w", err)
		}
		out = append(out, fromAccountRow(row))
	}
	return out, nil
}

// GetAccount fetches a single account by id, or nil if not found.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT account_id, name, account_type, parent_account_id, source,
		       description, is_active
		FROM %s
		WHERE account_id = @accountID
		LIMIT 1
	`, s.table(TableAccounts)))
	query.Parameters = []bigquery.QueryParameter{{Name: "accountID", Value: accountID}}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.GetAccount: reading: %w", err)
	}
	var row accountRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, nil
		}
		return nil, fmt.Errorf("store.GetAccount: iterating: %w", err)
	}
	acc := fromAccountRow(row)
	return &acc, nil
}

// maxHierarchyDepth bounds AccountHierarchy's iterative expansion so a data
// error (an accidental cycle that slipped past ACC_CYCLE validation) can
// never spin the query loop forever.
const maxHierarchyDepth = 32

// AccountHierarchy returns rootID and every descendant reachable from it,
// expanded breadth-first with bounded depth rather than a single recursive
// SQL CTE, since BigQuery Standard SQL has no native recursive query. This
// mirrors the teacher's preference (seen across internal/infra/bigquery)
// for looped parameterized queries over exotic SQL.
func (s *Store) AccountHierarchy(ctx context.Context, rootID string) ([]domain.Account, error) {
	root, err := s.GetAccount(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("store.AccountHierarchy: %w", err)
	}
	if root == nil {
		return nil, nil
	}
	result := []domain.Account{*root}
	frontier := []string{rootID}
	for depth := 0; depth < maxHierarchyDepth && len(frontier) > 0; depth++ {
		children, err := s.childrenOf(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("store.AccountHierarchy: %w", err)
		}
		if len(children) == 0 {
			break
		}
		next := make([]string, 0, len(children))
		for _, c := range children {
			result = append(result, c)
			next = append(next, c.AccountID)
		}
		frontier = next
	}
	return result, nil
}

func (s *Store) childrenOf(ctx context.Context, parentIDs []string) ([]domain.Account, error) {
	query := s.client.Query(fmt.Sprintf(`
		SELECT account_id, name, account_type, parent_account_id, source,
		       description, is_active
		FROM %s
		WHERE parent_account_id IN UNNEST(@parentIDs)
	`, s.table(TableAccounts)))
	query.Parameters = []bigquery.QueryParameter{{Name: "parentIDs", Value: parentIDs}}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("childrenOf: reading: %w", err)
	}
	var out []domain.Account
	for {
		var row accountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("childrenOf: iterating: %w", err)
		}
		out = append(out, fromAccountRow(row))
	}
	return out, nil
}
