package etl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/ipeds-etl/internal/db"
	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
)

// LoadFailedError means a core batch could not be committed. The transaction
// has rolled back; no partial rows survive it.
type LoadFailedError struct {
	Endpoint string
	Cause    error
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("core load failed for %q: %v", e.Endpoint, e.Cause)
}

func (e *LoadFailedError) Unwrap() error { return e.Cause }

// CoreLoader writes mapped records into an endpoint's typed core table. Each
// batch is one transaction: the batch lands whole or not at all, and replaying
// the same batch converges on the same rows.
type CoreLoader struct {
	pool db.Pool
	log  *zap.Logger
}

// NewCoreLoader creates a CoreLoader backed by the given pool.
func NewCoreLoader(pool db.Pool) *CoreLoader {
	return &CoreLoader{
		pool: pool,
		log:  zap.L().With(zap.String("component", "coreloader")),
	}
}

// Upsert writes a batch of records keyed by the descriptor's primary key.
// Rows with a new key insert; rows with an existing key overwrite every
// non-key column. Returns how many did each.
func (l *CoreLoader) Upsert(ctx context.Context, desc endpoint.Descriptor, records []endpoint.Record) (inserted, updated int64, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = rec
	}

	cfg := db.UpsertConfig{
		Table:        desc.CoreTable,
		Columns:      desc.Columns,
		ConflictKeys: desc.PrimaryKey,
		UpdateCols:   nonKeyColumns(desc),
	}

	inserted, updated, err = db.BulkUpsert(ctx, l.pool, cfg, rows)
	if err != nil {
		return 0, 0, &LoadFailedError{Endpoint: desc.Name, Cause: err}
	}

	l.log.Debug("upserted core batch",
		zap.String("endpoint", desc.Name),
		zap.Int("records", len(records)),
		zap.Int64("inserted", inserted),
		zap.Int64("updated", updated))
	return inserted, updated, nil
}

func nonKeyColumns(desc endpoint.Descriptor) []string {
	keys := make(map[string]bool, len(desc.PrimaryKey))
	for _, k := range desc.PrimaryKey {
		keys[k] = true
	}
	cols := make([]string, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}
