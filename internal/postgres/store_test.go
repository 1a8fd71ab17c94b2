package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

type fakeDB struct {
	tx       *fakeTx
	beginErr error

	execSQL []string
	execErr error

	rows     *fakeRows
	queryErr error
	querySQL string
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

// fakeTx implements the pgx.Tx methods Store uses. Calling anything else
// panics through the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	execSQL    []string
	copyTable  pgx.Identifier
	copyCols   []string
	copied     [][]any
	copyErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func (f *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.copyTable = table
	f.copyCols = columns
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, values)
	}
	return int64(len(f.copied)), src.Err()
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeRows struct {
	pgx.Rows

	data   [][]string
	pos    int
	err    error
	closed bool
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.data) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.data[f.pos-1]
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

func (f *fakeRows) Err() error { return f.err }
func (f *fakeRows) Close()     { f.closed = true }

var (
	rec1 = core.Record{OsVersion: "22.02", Environment: "prod", ComponentID: "c1", ImageID: "i1"}
	rec2 = core.Record{OsVersion: "22.04", Environment: "preprod", ComponentID: "c2", ImageID: "i2"}
)

func TestStore_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewStore(db, "OsVersionImages").EnsureSchema(context.Background()))

	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], `CREATE TABLE IF NOT EXISTS "OsVersionImages"`)
	for _, col := range copyColumns {
		assert.Contains(t, db.execSQL[0], col)
	}

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, NewStore(db, "T").EnsureSchema(context.Background()), "permission denied")
}

func TestStore_Persisted(t *testing.T) {
	rows := &fakeRows{data: [][]string{
		{"22.02", "prod", "c1", "i1"},
		{"22.04", "preprod", "c2", "i2"},
	}}
	db := &fakeDB{rows: rows}

	got, err := NewStore(db, "OsVersionImages").Persisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Record{rec1, rec2}, got)
	assert.True(t, rows.closed)
	assert.True(t, strings.HasSuffix(db.querySQL, `FROM "OsVersionImages"`), db.querySQL)
}

func TestStore_PersistedErrors(t *testing.T) {
	_, err := NewStore(&fakeDB{queryErr: errors.New("no such table")}, "T").Persisted(context.Background())
	assert.ErrorContains(t, err, "no such table")

	rows := &fakeRows{err: errors.New("connection reset")}
	_, err = NewStore(&fakeDB{rows: rows}, "T").Persisted(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestStore_ApplyAppend(t *testing.T) {
	tx := &fakeTx{}
	store := NewStore(&fakeDB{tx: tx}, "OsVersionImages")

	n, err := store.Apply(context.Background(), core.WritePlan{Mode: core.ModeAppend, Rows: []core.Record{rec1, rec2}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), n)
	assert.Empty(t, tx.execSQL, "append must not clear the table")
	assert.Equal(t, pgx.Identifier{"OsVersionImages"}, tx.copyTable)
	assert.Equal(t, copyColumns, tx.copyCols)
	assert.Equal(t, [][]any{
		{"22.02", "prod", "c1", "i1"},
		{"22.04", "preprod", "c2", "i2"},
	}, tx.copied)
	assert.True(t, tx.committed)
}

func TestStore_ApplyReplace(t *testing.T) {
	tx := &fakeTx{}
	store := NewStore(&fakeDB{tx: tx}, "OsVersionImages")

	n, err := store.Apply(context.Background(), core.WritePlan{Mode: core.ModeReplace, Rows: []core.Record{rec2}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), n)
	require.Len(t, tx.execSQL, 1)
	assert.Equal(t, `DELETE FROM "OsVersionImages"`, tx.execSQL[0])
	assert.True(t, tx.committed)
}

func TestStore_ApplySkip(t *testing.T) {
	db := &fakeDB{beginErr: errors.New("should not begin")}
	n, err := NewStore(db, "T").Apply(context.Background(), core.WritePlan{Mode: core.ModeSkip})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ApplyRollsBackOnFailure(t *testing.T) {
	tx := &fakeTx{copyErr: errors.New("disk full")}
	_, err := NewStore(&fakeDB{tx: tx}, "T").Apply(context.Background(), core.WritePlan{Mode: core.ModeReplace, Rows: []core.Record{rec1}})

	assert.ErrorContains(t, err, "disk full")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestStore_ApplyCommitFailure(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	n, err := NewStore(&fakeDB{tx: tx}, "T").Apply(context.Background(), core.WritePlan{Mode: core.ModeAppend, Rows: []core.Record{rec1}})

	assert.ErrorContains(t, err, "serialization failure")
	assert.Zero(t, n)
}
