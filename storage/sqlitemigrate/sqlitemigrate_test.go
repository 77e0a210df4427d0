package sqlitemigrate_test

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tailored-agentic-units/workflow/storage/sqlitemigrate"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(query).Scan(&n))
	return n
}

func TestApply_RecordsAndSkips(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	first := fstest.MapFS{
		"001_items.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;")},
	}
	require.NoError(t, sqlitemigrate.Apply(ctx, db, first, ""))
	require.NoError(t, sqlitemigrate.Apply(ctx, db, first, ""))

	assert.Equal(t, 1, count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, 1, count(t, db, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='items'"))

	second := fstest.MapFS{
		"001_items.sql": first["001_items.sql"],
		"002_tags.sql":  {Data: []byte("CREATE TABLE tags(id TEXT PRIMARY KEY);")},
		"README.md":     {Data: []byte("ignored")},
	}
	require.NoError(t, sqlitemigrate.Apply(ctx, db, second, "."))
	assert.Equal(t, 2, count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
}

func TestApply_FailingMigrationRollsBack(t *testing.T) {
	db := openMemory(t)

	broken := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE ok(id TEXT); CREATE TABLE;")},
	}
	require.Error(t, sqlitemigrate.Apply(context.Background(), db, broken, ""))
	assert.Equal(t, 0, count(t, db, "SELECT COUNT(*) FROM schema_migrations"))
}

func TestApply_NilDB(t *testing.T) {
	assert.Error(t, sqlitemigrate.Apply(context.Background(), nil, fstest.MapFS{}, ""))
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nA\n", sqlitemigrate.UpSection("-- +migrate Up\nA\n-- +migrate Down\nB"))
	assert.Equal(t, "\nA", sqlitemigrate.UpSection("-- +migrate Up\nA"))
	assert.Equal(t, "A", sqlitemigrate.UpSection("A"))
}
