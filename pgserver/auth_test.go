package pgserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomSecretKeyProducesDistinctValues(t *testing.T) {
	seen := make(map[int32]bool)
	for i := 0; i < 64; i++ {
		secret, err := randomSecretKey()
		require.NoError(t, err)
		require.False(t, seen[secret], "expected CSPRNG-sourced secrets not to collide across 64 draws")
		seen[secret] = true
	}
}

func TestRandomSecretKeyIsNotDerivedFromBackendID(t *testing.T) {
	a, err := randomSecretKey()
	require.NoError(t, err)
	b, err := randomSecretKey()
	require.NoError(t, err)
	// A deterministic backendID*31+7 derivation would make every
	// generated secret differ from its neighbor by a fixed stride;
	// CSPRNG output must not.
	require.NotEqual(t, a+31, b, "secret must not follow the old deterministic backendID*31+7 stride")
}
