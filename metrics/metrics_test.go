package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestConnectionOpenedAndClosedTrackGauge(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.ConnectionOpened()
	require.Equal(t, float64(2), testutil.ToFloat64(c.connectionsActive))
	require.Equal(t, float64(2), testutil.ToFloat64(c.connectionsTotal))

	c.ConnectionClosed()
	require.Equal(t, float64(1), testutil.ToFloat64(c.connectionsActive))
	require.Equal(t, float64(2), testutil.ToFloat64(c.connectionsTotal), "expected total to be unaffected by a close")
}

func TestQueryErrorLabelsBySQLState(t *testing.T) {
	c := New()
	c.QueryError("42601")
	c.QueryError("42601")
	c.QueryError("08006")

	require.Equal(t, float64(2), testutil.ToFloat64(c.queryErrors.WithLabelValues("42601")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.queryErrors.WithLabelValues("08006")))
}

func TestNewRegistersIndependentRegistryPerCall(t *testing.T) {
	a := New()
	b := New()
	a.ConnectionOpened()
	require.Equal(t, float64(0), testutil.ToFloat64(b.connectionsActive), "expected independent registries to not share state")
}
