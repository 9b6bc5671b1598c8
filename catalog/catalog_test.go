package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intersystems-community/iris-pgwire-sub007/oidgen"
)

type fakeBackend struct {
	rows map[string][]map[string]string
}

func (f *fakeBackend) QueryRows(ctx context.Context, sql string) ([]map[string]string, error) {
	for pattern, rows := range f.rows {
		if pattern == "*" || sqlContains(sql, pattern) {
			return rows, nil
		}
	}
	return nil, nil
}

func sqlContains(sql, substr string) bool {
	for i := 0; i+len(substr) <= len(sql); i++ {
		if sql[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestIsCatalogQueryDetectsKnownRelations(t *testing.T) {
	require.True(t, IsCatalogQuery("SELECT * FROM pg_catalog.pg_namespace"))
	require.True(t, IsCatalogQuery("select * from INFORMATION_SCHEMA.COLUMNS"), "expected case-insensitive detection")
	require.False(t, IsCatalogQuery("SELECT * FROM orders"), "an ordinary user table query must not be detected as a catalog query")
}

func TestPgNamespaceRewritesSchemaNames(t *testing.T) {
	emu := New(&fakeBackend{}, oidgen.New())
	rs, err := emu.Execute(context.Background(), "SELECT * FROM pg_namespace")
	require.NoError(t, err)

	found := false
	for _, row := range rs.Rows {
		if row[1].Text == "public" {
			found = true
		}
		require.NotEqual(t, "SQLUser", row[1].Text, "expected SQLUser to be rewritten to public in pg_namespace output")
	}
	require.True(t, found, "expected a public namespace row")
}

func TestPgClassListsBackendTables(t *testing.T) {
	backend := &fakeBackend{rows: map[string][]map[string]string{
		"INFORMATION_SCHEMA.TABLES": {
			{"TABLE_NAME": "orders", "TABLE_TYPE": "BASE TABLE"},
		},
	}}
	emu := New(backend, oidgen.New())
	rs, err := emu.Execute(context.Background(), "SELECT * FROM pg_class")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "orders", rs.Rows[0][1].Text)
	require.Equal(t, "r", rs.Rows[0][3].Text, "expected relkind 'r' for a base table")
}

func TestPgConstraintSynthesizesNameForUnnamedConstraint(t *testing.T) {
	backend := &fakeBackend{rows: map[string][]map[string]string{
		"INFORMATION_SCHEMA.TABLE_CONSTRAINTS": {
			{"CONSTRAINT_NAME": "", "TABLE_NAME": "orders", "CONSTRAINT_TYPE": "PRIMARY KEY"},
		},
	}}
	emu := New(backend, oidgen.New())
	rs, err := emu.Execute(context.Background(), "SELECT * FROM pg_constraint")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)

	name := rs.Rows[0][1].Text
	require.NotEmpty(t, name)
	require.Contains(t, name, "anon_constraint_", "expected a synthesized surrogate name for an unnamed constraint")
}

func TestExecuteUnrecognizedRelationErrors(t *testing.T) {
	emu := New(&fakeBackend{}, oidgen.New())
	_, err := emu.Execute(context.Background(), "SELECT * FROM pg_foo_unknown")
	require.Error(t, err, "expected an error for a relation with no matching row producer")
}
