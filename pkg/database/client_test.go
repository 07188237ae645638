package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := NewFromDB(nil, DriverPostgres)
	lite := NewFromDB(nil, DriverSQLite)

	q := "UPDATE works SET status = ? WHERE id = ?"
	assert.Equal(t, "UPDATE works SET status = $1 WHERE id = $2", pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestSQLiteInTxAndUniqueViolation(t *testing.T) {
	cfg := config.CatalogConfig{
		Driver: DriverSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "catalog.db")},
	}
	client, err := New(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.DB.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, path TEXT UNIQUE)`)
	require.NoError(t, err)

	errBoom := errors.New("boom")
	err = client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO t (path) VALUES ('a')`); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	var n int
	require.NoError(t, client.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 0, n, "rolled back insert must not persist")

	_, err = client.DB.ExecContext(ctx, `INSERT INTO t (path) VALUES ('a')`)
	require.NoError(t, err)
	_, err = client.DB.ExecContext(ctx, `INSERT INTO t (path) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}
