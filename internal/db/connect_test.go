package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{"": DriverSQLite, "sqlite3": DriverSQLite, "PGX": DriverPostgres, "postgres": DriverPostgres} {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDriver("mysql")
	require.Error(t, err)
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, ensureSchema(context.Background(), db, DriverSQLite))
}

func TestSingleInProgressIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.ExecContext(ctx, `INSERT INTO exams (id, course_id, name, created_at) VALUES ('e1','c1','Midterm',0)`)
	require.NoError(t, err)

	insert := `INSERT INTO attempts (id, exam_id, user_id, start_time, status) VALUES ($1,'e1','u1',0,$2)`
	_, err = db.ExecContext(ctx, insert, "a1", "in_progress")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "a2", "submitted")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "a3", "in_progress")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO enrollments (course_id, user_id, role) VALUES ('c1','u1','student')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments`).Scan(&n))
	assert.Zero(t, n)
}

func TestIsUniqueViolationOther(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
