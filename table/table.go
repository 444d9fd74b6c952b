// Package table implements the Raw Table (spec §4.5): a namespace bound to
// one column family in the storage engine, with a reader/writer lock that
// keeps "clear" (drop-then-recreate) from racing ordinary reads and writes.
package table

import (
	"sync"

	"github.com/openvstorage/volumedriver-sub006/engine"
)

// Raw exposes the namespace-scoped engine operations used by the managed
// table above it. owner_tag is accepted purely for logging -- enforcing the
// fencing rule is the Managed Table's job (spec §4.5).
type Raw struct {
	namespace string
	eng       *engine.Engine

	// mu guards the family's liveness: Clear takes it exclusively while the
	// bucket is mid drop-then-recreate; every other operation only needs a
	// shared hold, matching spec §4.5's locking rule.
	mu sync.RWMutex
}

func New(namespace string, eng *engine.Engine) *Raw {
	return &Raw{namespace: namespace, eng: eng}
}

func (t *Raw) Namespace() string { return t.namespace }

func (t *Raw) MultiSet(records []engine.Record, barrier bool, _ uint64) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.eng.BatchWrite(t.namespace, records, barrier)
}

func (t *Raw) MultiGet(keys [][]byte) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.eng.MultiGet(t.namespace, keys)
}

// Clear drops and recreates the family under an exclusive hold; any
// operation that was blocked on the lock resumes against the fresh family
// once Clear releases it, per spec §4.5.
func (t *Raw) Clear(_ uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.ClearFamily(t.namespace)
}

// Drop removes the family entirely; the Raw Table must not be used again
// afterwards (the owning Database drops the entry too).
func (t *Raw) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.DropFamily(t.namespace)
}
