// Package config parses and validates the MDS node-config tree (spec §6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
)

// NodeEntry is one entry of mds_nodes[] (spec §6).
type NodeEntry struct {
	Host              string `yaml:"host"`
	Port              uint16 `yaml:"port"`
	DBDirectory       string `yaml:"db_directory"`
	ScratchDirectory  string `yaml:"scratch_directory"`
	RocksDBThreads    *uint32 `yaml:"rocksdb_threads,omitempty"`
	RocksDBWriteCache *uint64 `yaml:"rocksdb_write_cache_size,omitempty"`
	RocksDBReadCache  *uint64 `yaml:"rocksdb_read_cache_size,omitempty"`
	RocksDBEnableWAL  *bool   `yaml:"rocksdb_enable_wal,omitempty"`
	RocksDBDataSync   *bool   `yaml:"rocksdb_data_sync,omitempty"`
}

// Config is the top-level node-config tree, with defaults applied (spec §6).
type Config struct {
	Nodes       []NodeEntry `yaml:"mds_nodes"`
	PollSecs    uint64      `yaml:"mds_poll_secs"`
	Threads     uint32      `yaml:"mds_threads"`
	TimeoutSecs uint32      `yaml:"mds_timeout_secs"`
	CachedPages uint32      `yaml:"mds_cached_pages"`
}

const (
	defaultPollSecs    = 300
	defaultThreads     = 1
	defaultTimeoutSecs = 30
	defaultCachedPages = 256
)

// Load reads and validates a node-config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cmn.Storage(fmt.Sprintf("reading config file %q", path), err)
	}
	return Parse(data)
}

// Parse decodes and validates a node-config document, applying defaults for
// any key the spec says defaults (spec §6).
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, cmn.Protocol(fmt.Sprintf("parsing config: %v", err))
	}

	if c.PollSecs == 0 {
		c.PollSecs = defaultPollSecs
	}
	// mds_threads (0 = auto) and mds_timeout_secs (0 = infinite) take their
	// defaults only when the key is absent, so an explicit 0 is kept.
	var present struct {
		Threads     *uint32 `yaml:"mds_threads"`
		TimeoutSecs *uint32 `yaml:"mds_timeout_secs"`
	}
	_ = yaml.Unmarshal(data, &present)
	if present.Threads == nil {
		c.Threads = defaultThreads
	}
	if present.TimeoutSecs == nil {
		c.TimeoutSecs = defaultTimeoutSecs
	}
	if c.CachedPages == 0 {
		c.CachedPages = defaultCachedPages
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	seenAddr := map[string]bool{}
	seenDB := map[string]bool{}
	seenScratch := map[string]bool{}

	for i, n := range c.Nodes {
		if n.Host == "" {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: host is required", i))
		}
		if n.Port == 0 {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: port is required", i))
		}
		if n.DBDirectory == "" {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: db_directory is required", i))
		}
		if n.ScratchDirectory == "" {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: scratch_directory is required", i))
		}

		addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
		if seenAddr[addr] {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: duplicate node_address:port %q", i, addr))
		}
		seenAddr[addr] = true

		if seenDB[n.DBDirectory] {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: duplicate db_directory %q", i, n.DBDirectory))
		}
		seenDB[n.DBDirectory] = true

		if seenScratch[n.ScratchDirectory] {
			return cmn.Protocol(fmt.Sprintf("mds_nodes[%d]: duplicate scratch_directory %q", i, n.ScratchDirectory))
		}
		seenScratch[n.ScratchDirectory] = true

		// bbolt has no column-family-level thread/cache knobs; these are
		// accepted and validated for compatibility with the recognized key
		// set, but only rocksdb_enable_wal maps onto anything real.
		if n.RocksDBThreads != nil {
			mlog.Warnln("config: rocksdb_threads has no effect on this storage engine")
		}
		if n.RocksDBWriteCache != nil {
			mlog.Warnln("config: rocksdb_write_cache_size has no effect on this storage engine")
		}
		if n.RocksDBReadCache != nil {
			mlog.Warnln("config: rocksdb_read_cache_size has no effect on this storage engine")
		}
		if n.RocksDBDataSync != nil {
			mlog.Warnln("config: rocksdb_data_sync has no effect on this storage engine")
		}
	}

	return nil
}

// EngineNoSync translates rocksdb_enable_wal onto the adapter's NoSync knob:
// WAL enabled (the conservative default) means bbolt should sync every
// commit, i.e. NoSync=false.
func (n NodeEntry) EngineNoSync() bool {
	if n.RocksDBEnableWAL == nil {
		return false
	}
	return !*n.RocksDBEnableWAL
}
