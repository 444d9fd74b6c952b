package shmem

import "sync"

// Table is the per-connection map `region_id -> SharedMemoryRegion` that
// spec §4.4 attaches to every accepted connection, opened on demand the
// first time a request references a region id the connection hasn't seen
// yet. It is only ever touched from that connection's own goroutine, but
// the mutex keeps it safe if a future caller relaxes that assumption.
type Table struct {
	mu      sync.Mutex
	regions map[uint64]*Region
	size    int
}

func NewTable(regionSize int) *Table {
	return &Table{regions: make(map[uint64]*Region), size: regionSize}
}

// Get returns the region for id, opening it on first reference.
func (t *Table) Get(id uint64) (*Region, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.regions[id]; ok {
		return r, nil
	}
	r, err := Open(id, t.size)
	if err != nil {
		return nil, err
	}
	t.regions[id] = r
	return r, nil
}

// CloseAll closes every region this connection opened, called when the
// connection is torn down.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, r := range t.regions {
		_ = r.Close()
		delete(t.regions, id)
	}
}
