package typecodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeTextBool(t *testing.T) {
	r := NewRegistry()
	b, err := r.EncodeText(OIDBool, Value{Kind: KindBool, Bool: true})
	require.NoError(t, err)
	require.Equal(t, "t", string(b))
}

func TestEncodeTextNullIsNilBytes(t *testing.T) {
	r := NewRegistry()
	b, err := r.EncodeText(OIDInt4, Value{Kind: KindNull})
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestEncodeBinaryInt4RoundTrip(t *testing.T) {
	r := NewRegistry()
	c, ok := r.Lookup(OIDInt4)
	require.True(t, ok, "expected int4 codec to be registered")

	encoded, err := r.EncodeBinary(OIDInt4, Value{Kind: KindInt, Int: 12345})
	require.NoError(t, err)

	decoded, err := c.BinaryDecode(encoded)
	require.NoError(t, err)
	require.Equal(t, int64(12345), decoded.Int)
}

func TestEncodeBinaryNoCodecErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.EncodeBinary(999999, Value{Kind: KindInt, Int: 1})
	require.Error(t, err, "expected an error when no binary codec is registered for the OID")
}

func TestTimestampEpochRoundTrip(t *testing.T) {
	ref := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	micros := TimeToPGMicros(ref)
	back := PGMicrosToTime(micros)
	require.True(t, back.Equal(ref))
}

func TestDateEpochRoundTrip(t *testing.T) {
	ref := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	days := TimeToPGDays(ref)
	back := PGDaysToTime(days)
	require.True(t, back.Equal(ref))
}

func TestPGEpochIsYear2000(t *testing.T) {
	epoch := PGMicrosToTime(0)
	want := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, epoch.Equal(want))
}
