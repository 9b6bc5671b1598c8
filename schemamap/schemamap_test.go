package schemamap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateInputSQLRewritesQualifiedIdent(t *testing.T) {
	got := TranslateInputSQL("SELECT * FROM public.orders WHERE id = 1")
	require.Equal(t, "SELECT * FROM SQLUser.orders WHERE id = 1", got)
}

func TestTranslateInputSQLRewritesLiteral(t *testing.T) {
	got := TranslateInputSQL("SELECT * FROM information_schema.tables WHERE table_schema = 'public'")
	require.Equal(t, "SELECT * FROM information_schema.tables WHERE table_schema = 'SQLUser'", got)
}

func TestTranslateInputSQLIsCaseInsensitive(t *testing.T) {
	got := TranslateInputSQL("SELECT * FROM PUBLIC.Orders")
	require.Equal(t, "SELECT * FROM SQLUser.Orders", got)
}

func TestTranslateInputSQLRewritesSchemaNameAndNspnameComparisons(t *testing.T) {
	got := TranslateInputSQL("SELECT * FROM information_schema.columns WHERE schema_name = 'public'")
	require.Equal(t, "SELECT * FROM information_schema.columns WHERE schema_name = 'SQLUser'", got)

	got = TranslateInputSQL("SELECT * FROM pg_namespace WHERE nspname='public'")
	require.Equal(t, "SELECT * FROM pg_namespace WHERE nspname='SQLUser'", got)
}

// Regression test: a bare 'public' literal that is not compared against
// a schema-name column is ordinary user data and must never be
// rewritten (spec §4.7 scopes the literal rewrite to schema-related
// column comparisons only).
func TestTranslateInputSQLLeavesUnrelatedLiteralsUntouched(t *testing.T) {
	got := TranslateInputSQL("INSERT INTO posts (visibility) VALUES ('public')")
	require.Equal(t, "INSERT INTO posts (visibility) VALUES ('public')", got)

	got = TranslateInputSQL("SELECT * FROM posts WHERE visibility = 'public'")
	require.Equal(t, "SELECT * FROM posts WHERE visibility = 'public'", got)
}

func TestTranslateOutputRowsRewritesSchemaColumns(t *testing.T) {
	rows := [][]string{{"SQLUser", "orders"}, {"%SYS", "internal"}}
	out := TranslateOutputRows(rows, []string{"table_schema", "table_name"})
	require.Equal(t, "public", out[0][0], "expected SQLUser to be rewritten to public")
	require.Equal(t, "%SYS", out[1][0], "expected %%SYS to be left untouched")
	require.Equal(t, "orders", out[0][1], "non-schema column must be untouched")
}

func TestTranslateOutputRowsNoMatchingColumnsIsNoop(t *testing.T) {
	rows := [][]string{{"SQLUser"}}
	out := TranslateOutputRows(rows, []string{"irrelevant_column"})
	require.Equal(t, "SQLUser", out[0][0], "expected no rewrite when no schema-name column is present")
}
