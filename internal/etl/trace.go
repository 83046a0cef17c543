package etl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ipeds-etl/internal/db"
)

// SourceTrace links one core row to the raw page it derived from. One row is
// written per core write, insert or update alike.
type SourceTrace struct {
	CoreTable  string
	CorePK     []any // ordered values matching the descriptor's primary key
	SourceURL  string
	SourceHash string
	IngestedAt time.Time
	LoadTS     time.Time
}

var traceColumns = []string{"core_table", "core_pk", "source_url", "source_hash", "ingested_at", "load_ts"}

// TraceWriter appends provenance rows to ipeds_meta.source_trace. Writes are
// best-effort: the caller logs failures and moves on, since lineage is
// diagnostic, not a correctness gate.
type TraceWriter struct {
	pool db.Pool
}

// NewTraceWriter creates a TraceWriter backed by the given pool.
func NewTraceWriter(pool db.Pool) *TraceWriter {
	return &TraceWriter{pool: pool}
}

// Write appends traces via COPY and returns the number written.
func (w *TraceWriter) Write(ctx context.Context, traces []SourceTrace) (int64, error) {
	if len(traces) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(traces))
	for _, t := range traces {
		pkJSON, err := json.Marshal(t.CorePK)
		if err != nil {
			return 0, eris.Wrapf(err, "trace: marshal pk for %s", t.CoreTable)
		}
		rows = append(rows, []any{t.CoreTable, pkJSON, t.SourceURL, t.SourceHash, t.IngestedAt, t.LoadTS})
	}

	n, err := db.CopyFromSchema(ctx, w.pool, "ipeds_meta", "source_trace", traceColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "trace: write source traces")
	}
	return n, nil
}
