// Package postgres provides a PostgreSQL-backed destination table for
// environments without a Kusto cluster.
//
// Append writes use the COPY protocol. Replace writes delete every row and
// copy the full candidate set in a single transaction, so readers never see
// a half-replaced table.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// copyColumns are the database column names in core.Columns order.
var copyColumns = []string{"os_version", "environment", "component_id", "image_id"}

// Store is the PostgreSQL destination table.
type Store struct {
	db    DB
	table pgx.Identifier
}

// NewStore creates a store over table.
func NewStore(db DB, table string) *Store {
	return &Store{db: db, table: pgx.Identifier{table}}
}

// EnsureSchema creates the table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	os_version   TEXT NOT NULL,
	environment  TEXT NOT NULL,
	component_id TEXT NOT NULL,
	image_id     TEXT NOT NULL
)`, s.table.Sanitize())

	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", s.table.Sanitize(), err)
	}
	return nil
}

// Persisted reads every row of the table.
func (s *Store) Persisted(ctx context.Context) ([]core.Record, error) {
	sql := fmt.Sprintf("SELECT os_version, environment, component_id, image_id FROM %s", s.table.Sanitize())

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table.Sanitize(), err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		var r core.Record
		if err := rows.Scan(&r.OsVersion, &r.Environment, &r.ComponentID, &r.ImageID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table.Sanitize(), err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table.Sanitize(), err)
	}

	return records, nil
}

// Apply writes the plan in one transaction and returns the copied row count.
func (s *Store) Apply(ctx context.Context, plan core.WritePlan) (int64, error) {
	if plan.Skip() {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if plan.Mode == core.ModeReplace {
		tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table.Sanitize()))
		if err != nil {
			return 0, fmt.Errorf("clear %s: %w", s.table.Sanitize(), err)
		}
		slog.Debug("cleared table for replace", "table", s.table.Sanitize(), "rows_deleted", tag.RowsAffected())
	}

	rows := make([][]any, len(plan.Rows))
	for i, r := range plan.Rows {
		rows[i] = []any{r.OsVersion, r.Environment, r.ComponentID, r.ImageID}
	}

	copied, err := tx.CopyFrom(ctx, s.table, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.table.Sanitize(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return copied, nil
}
