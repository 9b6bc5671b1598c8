package vectoropt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteSubstitutesOrderByParam(t *testing.T) {
	sql := "SELECT id FROM docs ORDER BY embedding <-> TO_VECTOR($1,FLOAT) LIMIT 10"
	params := [][]byte{[]byte("[1,2,3]")}

	out, consumed, subs, err := Rewrite(sql, params, "")
	require.NoError(t, err)
	require.Contains(t, out, "TO_VECTOR('[1,2,3]', FLOAT)", "expected literal substitution with the declared type kept")
	require.NotContains(t, out, "$1", "expected the bound parameter to be replaced")
	require.True(t, consumed[1], "expected param 1 to be marked consumed")
	require.Len(t, subs, 1)
	require.Equal(t, 1, subs[0].ParamIndex)
}

func TestRewriteNoOrderByIsNoop(t *testing.T) {
	sql := "SELECT id FROM docs WHERE id = $1"
	out, consumed, subs, err := Rewrite(sql, [][]byte{[]byte("1")}, "")
	require.NoError(t, err)
	require.Equal(t, sql, out, "expected SQL to be unchanged")
	require.Nil(t, consumed)
	require.Nil(t, subs)
}

func TestRewriteTypeMismatchErrors(t *testing.T) {
	sql := "SELECT id FROM docs ORDER BY embedding <-> TO_VECTOR($1,FLOAT) LIMIT 10"
	params := [][]byte{[]byte("[1,2,3]")}

	_, _, _, err := Rewrite(sql, params, "DOUBLE")
	require.Error(t, err, "expected an error when TO_VECTOR's declared type doesn't match the column's vector type")
}

func TestRewriteOutOfRangeParamErrors(t *testing.T) {
	sql := "SELECT id FROM docs ORDER BY embedding <-> TO_VECTOR($2,FLOAT) LIMIT 10"
	params := [][]byte{[]byte("[1,2,3]")}

	_, _, _, err := Rewrite(sql, params, "")
	require.Error(t, err, "expected an error when TO_VECTOR references a parameter index beyond the param list")
}

func TestRewriteBase64Vector(t *testing.T) {
	sql := "SELECT id FROM docs ORDER BY embedding <-> TO_VECTOR($1,FLOAT) LIMIT 5"
	// base64 of four little-endian float32 zero bytes (0.0)
	params := [][]byte{[]byte("base64:AAAAAA==")}

	out, consumed, _, err := Rewrite(sql, params, "")
	require.NoError(t, err)
	require.True(t, consumed[1], "expected param 1 to be consumed")
	require.Contains(t, out, "[0]", "expected decoded zero-valued vector literal")
}
