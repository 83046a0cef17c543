package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // schema-qualified target table (e.g., "ipeds_core.directory")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the primary key
	UpdateCols   []string // columns to update on conflict; nil = all non-key columns
}

// BulkUpsert performs an idempotent bulk upsert in a single transaction:
//  1. Creates a temp table with the same columns, dropped on commit
//  2. COPYs rows into the temp table
//  3. Dedupes the temp table on the conflict keys (last occurrence wins)
//  4. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE
//
// The RETURNING clause splits the result into inserted vs updated counts
// (xmax = 0 identifies freshly inserted rows). Re-running with identical
// input leaves stored values unchanged; the conflict path still counts the
// touched rows as updated. Any failure rolls the whole batch back.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (inserted, updated int64, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, 0, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	// Create temp table with same structure as target
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	// COPY rows into temp table
	copySource := pgx.CopyFromRows(rows)
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, copySource); err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	// Dedupe on conflict keys so ON CONFLICT never touches the same row twice.
	var keyMatch []string
	for _, k := range cfg.ConflictKeys {
		keyMatch = append(keyMatch, fmt.Sprintf("a.%s = b.%s", pgx.Identifier{k}.Sanitize(), pgx.Identifier{k}.Sanitize()))
	}
	dedupeSQL := fmt.Sprintf(
		"DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		pgx.Identifier{tempTable}.Sanitize(),
		pgx.Identifier{tempTable}.Sanitize(),
		strings.Join(keyMatch, " AND "),
	)
	if _, err := tx.Exec(ctx, dedupeSQL); err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert: dedupe temp table for %s", cfg.Table)
	}

	// Build INSERT ... ON CONFLICT ... DO UPDATE ... RETURNING
	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)

	var setClauses []string
	for _, col := range updateCols {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", pgx.Identifier{col}.Sanitize(), pgx.Identifier{col}.Sanitize()))
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0) AS inserted",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		conflictList,
		strings.Join(setClauses, ", "),
	)

	result, err := tx.Query(ctx, upsertSQL)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	for result.Next() {
		var fresh bool
		if err := result.Scan(&fresh); err != nil {
			result.Close()
			return 0, 0, eris.Wrapf(err, "db: upsert: scan result for %s", cfg.Table)
		}
		if fresh {
			inserted++
		} else {
			updated++
		}
	}
	result.Close()
	if err := result.Err(); err != nil {
		return 0, 0, eris.Wrapf(err, "db: upsert: read results for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return inserted, updated, nil
}

// sanitizeTable handles schema-qualified table names like "ipeds_core.directory".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
