package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-agent/internal/domain"
)

// InsertAuditEntry records one phase transition of one file's ingestion,
// per spec.md §6's ingestion_audit table. Audit failures are logged by the
// caller but never abort ingestion itself — see internal/ingest.
func (s *Store) InsertAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	row := toIngestionAuditRow(e)
	inserter := s.client.Dataset(s.datasetID).Table(TableIngestionAudit).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("store.InsertAuditEntry: %w", err)
	}
	return nil
}
