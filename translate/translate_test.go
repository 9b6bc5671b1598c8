package translate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTranslateTopToLimit(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SELECT TOP 5 * FROM orders")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "LIMIT 5")
	require.NotContains(t, res.SQL, "TOP")
}

func TestTranslateSchemaQualifier(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SELECT * FROM public.orders")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "SQLUser.orders")
}

func TestTranslateVacuumUnsupported(t *testing.T) {
	tr := New(16, time.Minute)
	_, err := tr.Translate("VACUUM orders")
	require.Error(t, err, "expected VACUUM to be rejected as unsupported")
}

func TestTranslateL2DistanceUnsupported(t *testing.T) {
	tr := New(16, time.Minute)
	_, err := tr.Translate("SELECT * FROM docs ORDER BY embedding <-> '[1,2,3]'")
	require.Error(t, err, "expected <-> L2 distance operator to be rejected as unsupported")
}

func TestTranslateCosineOperatorRewrite(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SELECT id FROM docs ORDER BY embedding <=> $1")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "VECTOR_COSINE")
}

func TestTranslateBeginToStartTransaction(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("BEGIN")
	require.NoError(t, err)
	require.Equal(t, "START TRANSACTION", res.SQL)
}

func TestTranslateCachesResult(t *testing.T) {
	tr := New(16, time.Minute)
	sql := "SELECT TOP 1 * FROM orders"
	first, err := tr.Translate(sql)
	require.NoError(t, err)
	second, err := tr.Translate(sql)
	require.NoError(t, err)
	require.Equal(t, first.SQL, second.SQL)
}

func TestTranslateRegclassCastUsesResolver(t *testing.T) {
	tr := New(16, time.Minute, WithRegclassResolver(func(relation string) (uint32, error) {
		if relation == "orders" {
			return 16500, nil
		}
		return 0, nil
	}))
	res, err := tr.Translate("SELECT 'orders'::regclass")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "16500")
}

func TestTranslateInterceptsVersionProbe(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SELECT version()")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "14.0 (IRIS PGWire)")
	require.NotContains(t, res.SQL, "version()")
}

func TestTranslateInterceptsCurrentSchemaProbe(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("select current_schema()")
	require.NoError(t, err)
	require.Equal(t, "SELECT 'public' AS current_schema", res.SQL)
}

func TestTranslateInterceptsStandardConformingStringsProbe(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SHOW standard_conforming_strings")
	require.NoError(t, err)
	require.Equal(t, "SELECT 'on' AS standard_conforming_strings", res.SQL)
}

func TestTranslateLeavesOrdinaryVersionLookalikeAlone(t *testing.T) {
	tr := New(16, time.Minute)
	res, err := tr.Translate("SELECT version() AS v FROM orders")
	require.NoError(t, err)
	require.Contains(t, res.SQL, "version()", "only the exact bare probe form should be intercepted")
}

func TestParseArrayLiteral(t *testing.T) {
	got, err := ParseArrayLiteral("{1,2,3}")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, got)
}

func TestParseArrayLiteralEmpty(t *testing.T) {
	got, err := ParseArrayLiteral("{}")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestParseArrayLiteralRejectsNonArray(t *testing.T) {
	_, err := ParseArrayLiteral("5")
	require.Error(t, err)
}

func TestExpandArrayParam(t *testing.T) {
	got := ExpandArrayParam("SELECT * FROM orders WHERE status = ANY($1)", 1, []string{"1", "2", "3"})
	require.Equal(t, "SELECT * FROM orders WHERE status IN (1,2,3)", got)
}

func TestExpandArrayParamNoMatchIsNoop(t *testing.T) {
	got := ExpandArrayParam("SELECT * FROM orders WHERE status = ANY($2)", 1, []string{"1"})
	require.Equal(t, "SELECT * FROM orders WHERE status = ANY($2)", got)
}

func TestExpandArrayParamsExpandsBoundArrayLiteral(t *testing.T) {
	sql := "SELECT * FROM orders WHERE status = ANY($1)"
	out, consumed, err := ExpandArrayParams(sql, [][]byte{[]byte("{1,2,3}")})
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM orders WHERE status IN (1,2,3)", out)
	require.True(t, consumed[1])
}

func TestExpandArrayParamsLeavesNonArrayParamsAlone(t *testing.T) {
	sql := "SELECT * FROM orders WHERE id = ANY($1)"
	out, consumed, err := ExpandArrayParams(sql, [][]byte{[]byte("5")})
	require.NoError(t, err)
	require.Equal(t, sql, out)
	require.False(t, consumed[1])
}

func TestExpandArrayParamsOutOfRangeParamErrors(t *testing.T) {
	sql := "SELECT * FROM orders WHERE status = ANY($2)"
	_, _, err := ExpandArrayParams(sql, [][]byte{[]byte("{1,2,3}")})
	require.Error(t, err)
}

func TestExpandArrayParamsNoANYIsNoop(t *testing.T) {
	sql := "SELECT * FROM orders WHERE id = $1"
	out, consumed, err := ExpandArrayParams(sql, [][]byte{[]byte("5")})
	require.NoError(t, err)
	require.Equal(t, sql, out)
	require.Nil(t, consumed)
}
