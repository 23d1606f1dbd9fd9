package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/finance-agent/internal/gcs"
)

// loadRaw reads path as either a local filesystem path or a gs:// URI (per
// SPEC_FULL.md §6's ingestion source extension) and decodes it as JSON.
// Grounded on the teacher's gcsuploader.FetchFromGCS + local os.ReadFile
// split, both feeding the same decode step.
func loadRaw(ctx context.Context, storageSvc gcs.StorageService, path string) (map[string]any, error) {
	var data []byte
	var err error
	if strings.HasPrefix(path, "gs://") {
		if storageSvc == nil {
			return nil, fmt.Errorf("loadRaw: %s is a GCS URI but no storage service is configured", path)
		}
		data, err = storageSvc.FetchFromGCS(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("loadRaw: fetching %s: %w", path, err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loadRaw: reading %s: %w", path, err)
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("loadRaw: decoding %s: %w", path, err)
	}
	return raw, nil
}
