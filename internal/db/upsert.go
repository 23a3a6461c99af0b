package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyUpsert writes rows into a (possibly schema-qualified) table by
// staging them through a temp table with COPY, then merging with
// INSERT ... ON CONFLICT. Conflicting rows are overwritten: archive
// writes are idempotent per key, so the newest write wins. Returns the
// number of rows merged.
func CopyUpsert(ctx context.Context, pool Pool, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, eris.Errorf("db: upsert into %s: no columns", table)
	}
	if len(keys) == 0 {
		return 0, eris.Errorf("db: upsert into %s: no conflict keys", table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx)

	staging := stagingName(table)
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), sanitizeTable(table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: create staging table", table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: copy", table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(table, staging, columns, keys))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: merge", table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func stagingName(table string) string {
	return "_staging_" + strings.ReplaceAll(table, ".", "_")
}

// mergeSQL builds the INSERT ... ON CONFLICT DO UPDATE statement merging
// the staging table into the target. Every non-key column is overwritten
// from the incoming row.
func mergeSQL(table, staging string, columns, keys []string) string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	var sets []string
	for _, col := range columns {
		if keySet[col] {
			continue
		}
		q := pgx.Identifier{col}.Sanitize()
		sets = append(sets, q+" = EXCLUDED."+q)
	}

	colList := quoteAndJoin(columns)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(table), colList, colList,
		pgx.Identifier{staging}.Sanitize(),
		quoteAndJoin(keys),
		strings.Join(sets, ", "),
	)
}

// sanitizeTable quotes a table name, splitting an optional schema
// qualifier like "recon.series_points".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
