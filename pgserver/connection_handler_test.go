package pgserver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
)

func TestSplitStatementsIgnoresEmptyParts(t *testing.T) {
	got := splitStatements("SELECT 1; ; SELECT 2;")
	require.Equal(t, []string{"SELECT 1", " SELECT 2"}, got)
}

func TestSplitStatementsEmptyInput(t *testing.T) {
	got := splitStatements("   ")
	require.Empty(t, got)
}

func TestStatementTagUppercasesFirstToken(t *testing.T) {
	require.Equal(t, "SELECT", statementTag("select * from orders"))
	require.Equal(t, "INSERT", statementTag("  insert into t values (1)"))
	require.Equal(t, "", statementTag(""))
}

func TestLastIdentSegmentStripsSchemaQualifier(t *testing.T) {
	require.Equal(t, "docs", lastIdentSegment("SQLUser.docs"))
	require.Equal(t, "docs", lastIdentSegment("docs"))
}

func TestVectorElementTypeParsesIRISVectorDescriptor(t *testing.T) {
	require.Equal(t, "DOUBLE", vectorElementType("VECTOR(DOUBLE,768)"))
	require.Equal(t, "FLOAT", vectorElementType("vector(float, 3)"))
	require.Equal(t, "", vectorElementType("VARCHAR"))
}

func TestVectorColumnRegexCapturesColumnBeforeToVector(t *testing.T) {
	m := vectorColumnRe.FindStringSubmatch("SELECT id FROM docs ORDER BY VECTOR_COSINE(embedding, TO_VECTOR($1, DOUBLE))")
	require.NotNil(t, m)
	require.Equal(t, "embedding", m[1])
}

func TestFromTableRegexCapturesFirstFromTarget(t *testing.T) {
	m := fromTableRe.FindStringSubmatch("SELECT id FROM SQLUser.docs ORDER BY embedding")
	require.NotNil(t, m)
	require.Equal(t, "SQLUser.docs", m[1])
}

func TestCommandTagFormatting(t *testing.T) {
	cases := []struct {
		tag  string
		rows int64
		want string
	}{
		{"INSERT", 3, "INSERT 0 3"},
		{"SELECT", 5, "SELECT 5"},
		{"UPDATE", 1, "UPDATE 1"},
		{"DELETE", 0, "DELETE 0"},
		{"", 0, "OK"},
		{"BEGIN", 0, "BEGIN"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, commandTag(c.tag, c.rows))
	}
}

func TestFormatCodeAt(t *testing.T) {
	require.EqualValues(t, 0, formatCodeAt(nil, 0), "expected 0 for no format codes")
	require.EqualValues(t, 1, formatCodeAt([]int16{1}, 5), "expected single format code to apply to every column")

	codes := []int16{0, 1, 0}
	require.EqualValues(t, 1, formatCodeAt(codes, 1))
	require.EqualValues(t, 0, formatCodeAt(codes, 10), "expected out-of-range index to default to 0")
}

func TestTypeSizeKnownAndUnknownOIDs(t *testing.T) {
	require.EqualValues(t, 1, typeSize(typecodec.OIDBool))
	require.EqualValues(t, 8, typeSize(typecodec.OIDInt8))
	require.EqualValues(t, -1, typeSize(typecodec.OIDText), "expected variable-length type to report -1")
}

func TestValueToDriverArgConvertsEachKind(t *testing.T) {
	require.Nil(t, valueToDriverArg(typecodec.Value{Kind: typecodec.KindNull}))
	require.Equal(t, true, valueToDriverArg(typecodec.Value{Kind: typecodec.KindBool, Bool: true}))
	require.Equal(t, int64(42), valueToDriverArg(typecodec.Value{Kind: typecodec.KindInt, Int: 42}))
	require.Equal(t, 3.5, valueToDriverArg(typecodec.Value{Kind: typecodec.KindFloat, Float: 3.5}))
}

func TestCurrentTxStatusWithNilBackendConnIsIdle(t *testing.T) {
	h := &ConnectionHandler{}
	require.Equal(t, ReadyForQueryTransactionIndicator_Idle, h.currentTxStatus())
}

func TestDecodeBindParamNilRawIsNil(t *testing.T) {
	reg := typecodec.NewRegistry()
	v, err := decodeBindParam(reg, nil, typecodec.OIDInt4, 0)
	require.NoError(t, err)
	require.Nil(t, v, "expected nil for a NULL bind parameter")
}

func TestDecodeBindParamUnknownOIDFallsBackToRawString(t *testing.T) {
	reg := typecodec.NewRegistry()
	v, err := decodeBindParam(reg, []byte("hello"), 999999, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}
