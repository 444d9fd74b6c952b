// Package db implements the Database (spec §4.7 C8): the namespace registry
// mapping names to Managed Tables, backed by one Storage Engine instance.
package db

import (
	"sync"
	"time"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/mtable"
	"github.com/openvstorage/volumedriver-sub006/table"
)

// Config carries the knobs Database needs to construct a ManagedTable and
// stagger their boot-time catch-up (spec §6 mds_poll_secs).
type Config struct {
	PollInterval time.Duration
}

// Database owns one Storage Engine and every namespace opened against it.
type Database struct {
	eng     *engine.Engine
	backend catchup.BackendInterface
	cfg     Config

	mu    sync.RWMutex
	names map[string]*mtable.ManagedTable
}

// Open boots a Database from an already-opened Engine, enumerating every
// existing family as a namespace. Each registered ManagedTable randomizes
// its own first catch-up tick, so a restart with many namespaces doesn't
// thunder the backend all at once.
func Open(eng *engine.Engine, backend catchup.BackendInterface, cfg Config) (*Database, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	d := &Database{eng: eng, backend: backend, cfg: cfg, names: make(map[string]*mtable.ManagedTable)}

	families, err := eng.ListFamilies()
	if err != nil {
		return nil, err
	}
	for _, name := range families {
		d.register(name)
	}
	return d, nil
}

func (d *Database) register(namespace string) *mtable.ManagedTable {
	raw := table.New(namespace, d.eng)
	mt := mtable.New(namespace, raw, d.backend, mtable.Config{
		PollInterval: d.cfg.PollInterval,
		OnGone:       d.onNamespaceGone,
	})
	d.mu.Lock()
	d.names[namespace] = mt
	d.mu.Unlock()
	return mt
}

func (d *Database) onNamespaceGone(namespace string) {
	mlog.Warnln("db: namespace", namespace, "no longer exists on backend, dropping")
	if err := d.Drop(namespace); err != nil {
		mlog.Errorln("db: failed to drop gone namespace", namespace, ":", err)
	}
}

// Open creates (if absent) and returns the namespace's ManagedTable.
// "default" is reserved (spec §3 "Reserved family name `default` is never
// addressable as a namespace") and rejected outright: the engine's own
// family enumeration silently skips a bucket named default, so a namespace
// that slipped past this check would open successfully but then vanish from
// ListNamespaces on the very next restart.
func (d *Database) OpenNamespace(namespace string) (*mtable.ManagedTable, error) {
	if namespace == engine.DefaultFamily {
		return nil, cmn.Protocol("namespace \"" + engine.DefaultFamily + "\" is reserved and cannot be opened")
	}

	d.mu.RLock()
	mt, ok := d.names[namespace]
	d.mu.RUnlock()
	if ok {
		return mt, nil
	}

	if err := d.eng.CreateFamily(namespace); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if mt, ok := d.names[namespace]; ok {
		return mt, nil
	}
	raw := table.New(namespace, d.eng)
	mt = mtable.New(namespace, raw, d.backend, mtable.Config{
		PollInterval: d.cfg.PollInterval,
		OnGone:       d.onNamespaceGone,
	})
	d.names[namespace] = mt
	return mt, nil
}

// Find returns a namespace's ManagedTable without creating one.
func (d *Database) Find(namespace string) (*mtable.ManagedTable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mt, ok := d.names[namespace]
	if !ok {
		return nil, cmn.NewError(cmn.KindNamespaceGone, "namespace "+namespace+" is not open")
	}
	return mt, nil
}

// Drop removes a namespace entirely: its ManagedTable's background action is
// stopped, its storage family dropped, and its registry entry removed.
func (d *Database) Drop(namespace string) error {
	d.mu.Lock()
	mt, ok := d.names[namespace]
	if ok {
		delete(d.names, namespace)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return mt.Drop()
}

// ListNamespaces returns every currently open namespace name.
func (d *Database) ListNamespaces() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.names))
	for n := range d.names {
		names = append(names, n)
	}
	return names
}

// Close stops every namespace's background action and closes the engine.
func (d *Database) Close() error {
	d.mu.Lock()
	for _, mt := range d.names {
		mt.StopBackground()
	}
	d.mu.Unlock()
	return d.eng.Close()
}
