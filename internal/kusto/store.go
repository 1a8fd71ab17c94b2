package kusto

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

// rowCountColumn is the column of .set-or-append/.set-or-replace results
// holding the rows ingested per extent.
const rowCountColumn = "RowCount"

// Executor runs Kusto queries and management commands. Satisfied by *Client.
type Executor interface {
	Query(ctx context.Context, database, query string) (*Dataset, error)
	Mgmt(ctx context.Context, database, command string) (*Dataset, error)
}

// Store is the Kusto-backed destination table.
type Store struct {
	exec     Executor
	database string
	table    string
}

// NewStore creates a store for table in database.
func NewStore(exec Executor, database, table string) *Store {
	return &Store{exec: exec, database: database, table: table}
}

// Persisted reads the whole table. The read query is the bare table name.
func (s *Store) Persisted(ctx context.Context) ([]core.Record, error) {
	ds, err := s.exec.Query(ctx, s.database, s.table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	t, err := ds.Primary()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(core.Columns))
	for _, col := range core.Columns {
		i := t.ColumnIndex(col)
		if i < 0 {
			return nil, fmt.Errorf("table %s: %w", s.table, &core.MissingColumnError{Column: col})
		}
		idx[col] = i
	}

	records := make([]core.Record, 0, len(t.Rows))
	for n, row := range t.Rows {
		fields := make(map[string]string, len(idx))
		for col, i := range idx {
			if i >= len(row) {
				return nil, fmt.Errorf("table %s row %d: %w", s.table, n, &core.MissingColumnError{Column: col})
			}
			fields[col] = cellString(row[i])
		}
		r, err := core.RecordFromFields(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}

// Apply executes the plan's command and returns the ingested row count,
// summed over the extents the command reports.
func (s *Store) Apply(ctx context.Context, plan core.WritePlan) (int64, error) {
	if plan.Skip() {
		return 0, nil
	}

	ds, err := s.exec.Mgmt(ctx, s.database, plan.Command())
	if err != nil {
		return 0, err
	}
	t, err := ds.Primary()
	if err != nil {
		return 0, err
	}
	if len(t.Rows) == 0 {
		return 0, nil
	}
	i := t.ColumnIndex(rowCountColumn)
	if i < 0 {
		return 0, fmt.Errorf("command result: %w", &core.MissingColumnError{Column: rowCountColumn})
	}

	var total int64
	for n, row := range t.Rows {
		if i >= len(row) {
			return 0, fmt.Errorf("command result row %d: %w", n, &core.MissingColumnError{Column: rowCountColumn})
		}
		count, err := cellInt64(row[i])
		if err != nil {
			return 0, fmt.Errorf("command result row %d: %w", n, err)
		}
		total += count
	}
	return total, nil
}
