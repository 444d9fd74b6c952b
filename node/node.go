// Package node implements the Node Manager (spec §4.9 C9): the set of
// configured server nodes (Transport + Database + Storage Engine) running
// in this process, with conflict-checked config updates and weak handles to
// running nodes.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/config"
	"github.com/openvstorage/volumedriver-sub006/db"
	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/transport"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// ServerConfig is one configured node, per spec §4.9.
type ServerConfig struct {
	NodeAddress string
	Port        uint16
	DBPath      string
	ScratchPath string
	Options     engine.Options
	PollSecs    uint64
	Threads     uint32
	TimeoutSecs uint32
	RegionSize  int
}

// bytesPerCachedPage is the bbolt page size cached_pages was originally
// expressed in (spec §6 mds_cached_pages); a node's shmem region budget
// scales with it so a client request body can span the same working set.
const bytesPerCachedPage = 4096

func (c ServerConfig) addrKey() string { return fmt.Sprintf("%s:%d", c.NodeAddress, c.Port) }

// server is one running (ServerConfig, Database, Transport) triple.
type server struct {
	cfg     ServerConfig
	eng     *engine.Engine
	db      *db.Database
	srv     *transport.Server
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Manager owns zero or more running servers on this process.
type Manager struct {
	backend catchup.BackendInterface

	mu      sync.RWMutex
	servers map[string]*server // keyed by addrKey
}

func NewManager(backend catchup.BackendInterface) *Manager {
	return &Manager{backend: backend, servers: make(map[string]*server)}
}

// FromConfig derives the ServerConfig set a node-config tree describes.
func FromConfig(c *config.Config) []ServerConfig {
	out := make([]ServerConfig, len(c.Nodes))
	for i, n := range c.Nodes {
		out[i] = ServerConfig{
			NodeAddress: n.Host,
			Port:        n.Port,
			DBPath:      n.DBDirectory,
			ScratchPath: n.ScratchDirectory,
			Options:     engine.Options{NoSync: n.EngineNoSync(), Timeout: int64(c.TimeoutSecs)},
			PollSecs:    c.PollSecs,
			Threads:     c.Threads,
			TimeoutSecs: c.TimeoutSecs,
			RegionSize:  int(c.CachedPages) * bytesPerCachedPage,
		}
	}
	return out
}

// check validates a candidate config set against the conflict rule and the
// running-node db_path/scratch_path immutability rule, without applying
// anything (spec §4.9).
func (m *Manager) check(wanted []ServerConfig) error {
	seenAddr := map[string]bool{}
	seenDB := map[string]bool{}
	seenScratch := map[string]bool{}

	for _, c := range wanted {
		addr := c.addrKey()
		if seenAddr[addr] {
			return cmn.Protocol(fmt.Sprintf("duplicate node_address:port %q in config set", addr))
		}
		seenAddr[addr] = true
		if seenDB[c.DBPath] {
			return cmn.Protocol(fmt.Sprintf("duplicate db_path %q in config set", c.DBPath))
		}
		seenDB[c.DBPath] = true
		if seenScratch[c.ScratchPath] {
			return cmn.Protocol(fmt.Sprintf("duplicate scratch_path %q in config set", c.ScratchPath))
		}
		seenScratch[c.ScratchPath] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range wanted {
		if running, ok := m.servers[c.addrKey()]; ok {
			if running.cfg.DBPath != c.DBPath || running.cfg.ScratchPath != c.ScratchPath {
				return cmn.Protocol(fmt.Sprintf("node %q: db_path/scratch_path cannot change while running", c.addrKey()))
			}
		}
	}
	return nil
}

// update applies a checked config set: starts new nodes, stops removed
// ones, and leaves unchanged nodes running untouched (spec §4.9).
func (m *Manager) update(ctx context.Context, wanted []ServerConfig) error {
	if err := m.check(wanted); err != nil {
		return err
	}

	wantedAddrs := make(map[string]ServerConfig, len(wanted))
	for _, c := range wanted {
		wantedAddrs[c.addrKey()] = c
	}

	m.mu.Lock()
	var toStop []*server
	for addr, s := range m.servers {
		if _, ok := wantedAddrs[addr]; !ok {
			toStop = append(toStop, s)
			delete(m.servers, addr)
		}
	}
	var toStart []ServerConfig
	for addr, c := range wantedAddrs {
		if _, ok := m.servers[addr]; !ok {
			toStart = append(toStart, c)
		}
	}
	m.mu.Unlock()

	for _, s := range toStop {
		m.stopServer(s)
	}
	for _, c := range toStart {
		if err := m.startServer(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Update is the public entry point: check(pt) then update(pt) in one call.
func (m *Manager) Update(ctx context.Context, wanted []ServerConfig) error {
	return m.update(ctx, wanted)
}

func (m *Manager) startServer(ctx context.Context, c ServerConfig) error {
	eng, err := engine.Open(c.DBPath, c.Options)
	if err != nil {
		return err
	}
	pollInterval := time.Duration(c.PollSecs) * time.Second
	database, err := db.Open(eng, m.backend, db.Config{PollInterval: pollInterval})
	if err != nil {
		_ = eng.Close()
		return err
	}

	timeout := time.Duration(c.TimeoutSecs) * time.Second
	srv, err := transport.Listen(transport.Config{
		Host:       c.NodeAddress,
		Port:       c.Port,
		Threads:    c.Threads,
		Timeout:    timeout,
		RegionSize: c.RegionSize,
	}, &transport.DBHandler{DB: database})
	if err != nil {
		_ = database.Close()
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &server{cfg: c, eng: eng, db: database, srv: srv, cancel: cancel, stopped: make(chan struct{})}

	go func() {
		defer close(s.stopped)
		if err := srv.Serve(sctx); err != nil {
			mlog.Errorln("node: server", c.addrKey(), "exited with error:", err)
		}
	}()

	m.mu.Lock()
	m.servers[c.addrKey()] = s
	m.mu.Unlock()
	return nil
}

func (m *Manager) stopServer(s *server) {
	s.cancel()
	<-s.stopped
	_ = s.db.Close()
}

// find returns a weak handle to a running node's Database; the handle's
// methods fail with NodeGone once the node has since been stopped (spec
// §4.9 / §9 WeakDatabase).
func (m *Manager) find(addr string, port uint16) *WeakDatabase {
	return &WeakDatabase{mgr: m, addr: fmt.Sprintf("%s:%d", addr, port)}
}

// Find is the public entry point for find(node_cfg).
func (m *Manager) Find(addr string, port uint16) *WeakDatabase {
	return m.find(addr, port)
}

// WeakDatabase delegates to a node's Database through a reference that may
// have gone stale; every method re-resolves the live server each call.
type WeakDatabase struct {
	mgr  *Manager
	addr string
}

var ErrNodeGone = cmn.NewError(cmn.KindGeneric, "node is no longer running")

func (w *WeakDatabase) resolve() (*db.Database, error) {
	w.mgr.mu.RLock()
	defer w.mgr.mu.RUnlock()
	s, ok := w.mgr.servers[w.addr]
	if !ok {
		return nil, ErrNodeGone
	}
	return s.db, nil
}

func (w *WeakDatabase) ListNamespaces() ([]string, error) {
	d, err := w.resolve()
	if err != nil {
		return nil, err
	}
	return d.ListNamespaces(), nil
}

func (w *WeakDatabase) OpenNamespace(namespace string) error {
	d, err := w.resolve()
	if err != nil {
		return err
	}
	_, err = d.OpenNamespace(namespace)
	return err
}

func (w *WeakDatabase) Drop(namespace string) error {
	d, err := w.resolve()
	if err != nil {
		return err
	}
	return d.Drop(namespace)
}

// NodeStatus is one running node's introspection snapshot (spec §4.9
// [ADDED] Status()).
type NodeStatus struct {
	Address        string                   `json:"address"`
	NamespaceCount int                      `json:"namespace_count"`
	Namespaces     map[string]wire.Counters `json:"namespaces"`
}

// Status returns a JSON-serializable snapshot of every running node: its
// address, namespace count, and per-table counters (spec §3/§4.9).
func (m *Manager) Status() ([]byte, error) {
	m.mu.RLock()
	servers := make(map[string]*server, len(m.servers))
	for addr, s := range m.servers {
		servers[addr] = s
	}
	m.mu.RUnlock()

	statuses := make([]NodeStatus, 0, len(servers))
	for addr, s := range servers {
		names := s.db.ListNamespaces()
		counters := make(map[string]wire.Counters, len(names))
		for _, name := range names {
			mt, err := s.db.Find(name)
			if err != nil {
				continue // dropped between ListNamespaces and Find
			}
			counters[name] = mt.GetCounters(false)
		}
		statuses = append(statuses, NodeStatus{Address: addr, NamespaceCount: len(names), Namespaces: counters})
	}

	return jsoniter.Marshal(statuses)
}

// Shutdown stops every running node.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	servers := make([]*server, 0, len(m.servers))
	for addr, s := range m.servers {
		servers = append(servers, s)
		delete(m.servers, addr)
	}
	m.mu.Unlock()

	for _, s := range servers {
		m.stopServer(s)
	}
}
