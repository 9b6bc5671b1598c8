package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Init() is not exercised directly here: it registers flags on the
// global flag.CommandLine and calls flag.Parse(), which panics if
// invoked more than once per process (as repeated test runs of this
// package would). The env-fallback helpers it's built from are pure
// and tested directly instead.

func TestEnvOrUsesEnvWhenSet(t *testing.T) {
	t.Setenv("IRIS_PGWIRE_TEST_STRING", "from-env")
	require.Equal(t, "from-env", envOr("IRIS_PGWIRE_TEST_STRING", "default"))
}

func TestEnvOrFallsBackToDefault(t *testing.T) {
	require.Equal(t, "default", envOr("IRIS_PGWIRE_TEST_UNSET", "default"))
}

func TestEnvOrIntParsesValidInt(t *testing.T) {
	t.Setenv("IRIS_PGWIRE_TEST_INT", "42")
	require.Equal(t, 42, envOrInt("IRIS_PGWIRE_TEST_INT", 7))
}

func TestEnvOrIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("IRIS_PGWIRE_TEST_INT", "not-a-number")
	require.Equal(t, 7, envOrInt("IRIS_PGWIRE_TEST_INT", 7))
}

func TestEnvOrBoolParsesValidBool(t *testing.T) {
	t.Setenv("IRIS_PGWIRE_TEST_BOOL", "true")
	require.True(t, envOrBool("IRIS_PGWIRE_TEST_BOOL", false))
}

func TestEnvOrBoolFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("IRIS_PGWIRE_TEST_BOOL", "nope")
	require.True(t, envOrBool("IRIS_PGWIRE_TEST_BOOL", true), "expected fallback true")
}
