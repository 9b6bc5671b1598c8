package cancel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ canceled bool }

func (f *fakeHandle) Cancel() { f.canceled = true }

func TestCancelInvokesRegisteredHandle(t *testing.T) {
	r := New()
	h := &fakeHandle{}
	r.Register(1, 42, h)

	require.True(t, r.Cancel(1, 42), "expected Cancel to find the registered handle")
	require.True(t, h.canceled, "expected handle.Cancel to have been invoked")
}

func TestCancelWrongSecretFails(t *testing.T) {
	r := New()
	h := &fakeHandle{}
	r.Register(1, 42, h)

	require.False(t, r.Cancel(1, 99), "expected Cancel with the wrong secret to fail")
	require.False(t, h.canceled, "handle must not be canceled on a secret mismatch")
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := New()
	h := &fakeHandle{}
	r.Register(1, 42, h)
	r.Unregister(1, 42)

	require.False(t, r.Cancel(1, 42), "expected Cancel to fail after Unregister")
}

func TestNextBackendIDIsUnique(t *testing.T) {
	r := New()
	seen := make(map[int32]bool)
	for i := 0; i < 100; i++ {
		id := r.NextBackendID()
		require.False(t, seen[id], "NextBackendID returned a duplicate: %d", id)
		seen[id] = true
	}
}

func TestCancelUnknownReturnsFalse(t *testing.T) {
	r := New()
	require.False(t, r.Cancel(999, 999), "expected Cancel on an unregistered (backendID, secret) to return false")
}
