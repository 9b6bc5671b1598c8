// Package oidgen assigns stable, deterministic PostgreSQL OIDs to IRIS
// catalog objects (tables, columns, constraints, indexes, namespaces,
// types) that have no OID of their own. See spec §3 OIDAssignment and
// §4.3.
package oidgen

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// Kind enumerates the object categories that receive synthesized OIDs.
type Kind string

const (
	KindTable      Kind = "table"
	KindColumn     Kind = "column"
	KindConstraint Kind = "constraint"
	KindIndex      Kind = "index"
	KindNamespace  Kind = "namespace"
	KindType       Kind = "type"
)

// systemOIDCeiling is the first OID value the generator will hand out.
// PostgreSQL reserves OIDs below 16384 for built-in catalog objects;
// staying above that range avoids ever colliding with a well-known type
// or catalog OID such as those in typecodec.
const systemOIDCeiling = 16384

// Generator is a process-wide table mapping (namespace, kind, name)
// triples to stable uint32 OIDs. The zero value is not usable; use New.
//
// Stability only needs to hold for the lifetime of one process (spec
// §3 OIDAssignment invariant): the hash is reproducible across restarts
// given identical inputs, and the table only exists to memoize the hash
// computation and to disambiguate the rare collision.
type Generator struct {
	mu    sync.RWMutex
	byKey map[string]uint32
	used  map[uint32]string // oid -> key, for collision disambiguation
}

// New returns an empty Generator.
func New() *Generator {
	return &Generator{
		byKey: make(map[string]uint32),
		used:  make(map[uint32]string),
	}
}

func key(namespace string, kind Kind, name string) string {
	return namespace + ":" + string(kind) + ":" + name
}

// OID returns the stable OID for (namespace, kind, name), computing and
// memoizing it on first sight. The same triple always returns the same
// value for the lifetime of the Generator (spec §8 P6).
func (g *Generator) OID(namespace string, kind Kind, name string) uint32 {
	k := key(namespace, kind, name)

	g.mu.RLock()
	if oid, ok := g.byKey[k]; ok {
		g.mu.RUnlock()
		return oid
	}
	g.mu.RUnlock()

	oid := hashOID(k)

	g.mu.Lock()
	defer g.mu.Unlock()

	// Another goroutine may have raced us to compute the same key.
	if existing, ok := g.byKey[k]; ok {
		return existing
	}

	for {
		if owner, taken := g.used[oid]; !taken || owner == k {
			break
		}
		// Disambiguate by rehashing the OID itself; astronomically rare
		// in practice given a 32-bit space and SHA-256 input diffusion.
		oid = hashOID(fmt.Sprintf("%s#%d", k, oid))
	}

	g.byKey[k] = oid
	g.used[oid] = k
	return oid
}

// hashOID implements the deterministic algorithm from spec §4.3:
// SHA-256(key), first 4 bytes big-endian as uint32, bumped above the
// system-reserved range if needed.
func hashOID(k string) uint32 {
	sum := sha256.Sum256([]byte(k))
	oid := binary.BigEndian.Uint32(sum[0:4])
	if oid < systemOIDCeiling {
		oid += systemOIDCeiling
	}
	return oid
}
