package oidgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOIDStableAndDeterministic(t *testing.T) {
	g := New()
	a := g.OID("SQLUser", KindTable, "orders")
	b := g.OID("SQLUser", KindTable, "orders")
	require.Equal(t, a, b, "memoized OID must be stable across repeated calls")
}

func TestOIDFloor(t *testing.T) {
	g := New()
	oid := g.OID("SQLUser", KindColumn, "id")
	require.GreaterOrEqual(t, oid, uint32(16384), "generated OID must sit above the reserved user-object floor")
}

func TestOIDDistinguishesNamespaceAndKind(t *testing.T) {
	g := New()
	a := g.OID("SQLUser", KindTable, "widgets")
	b := g.OID("SQLUser", KindIndex, "widgets")
	c := g.OID("%SYS", KindTable, "widgets")
	require.NotEqual(t, a, b, "different kinds with the same name must not collide")
	require.NotEqual(t, a, c, "different namespaces with the same name must not collide")
}

func TestOIDAcrossGeneratorsSameInputSameOutput(t *testing.T) {
	a := New().OID("SQLUser", KindConstraint, "orders_pkey")
	b := New().OID("SQLUser", KindConstraint, "orders_pkey")
	require.Equal(t, a, b, "OID must be a pure function of (namespace, kind, name)")
}
