// Package store persists the unified domain model in BigQuery and serves
// the query operations the rest of the system needs (C4 in spec.md).
// Grounded on the teacher's internal/infra/bigquery + internal/bigquery
// repository-delegation pattern: a single client shared across operations,
// parameterized queries, iterator.Done read loops, Inserter().Put batch
// writes. The teacher split canonical types (internal/bigquery) from the
// repository wrapper (internal/infra/bigquery); that split is collapsed
// here into one Store type since the new domain has one cohesive component
// (see DESIGN.md).
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	TableFinancialRecords  = "financial_records"
	TableAccounts          = "accounts"
	TableAccountValues     = "account_values"
	TableIngestionAudit    = "ingestion_audit"
	TableSchemaMigrations  = "schema_migrations"
)

// Store wraps a shared BigQuery client. Every operation acquires no
// additional connection beyond this one client, per spec.md §5's bounded
// connection pool requirement (BigQuery's client pools transport
// connections internally; Store itself never opens a second client).
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// New creates a Store backed by a BigQuery client for projectID/datasetID.
func New(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("store.New: creating BigQuery client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close releases the underlying BigQuery client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}
