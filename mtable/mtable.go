// Package mtable implements the Managed Table (spec §4.5 C7): a Raw Table
// wrapped with the role/owner-tag fencing state machine, the background
// catch-up tick, and the table counters exposed over the wire.
package mtable

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/metrics"
	"github.com/openvstorage/volumedriver-sub006/table"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// Config parameterizes the background catch-up tick and the namespace-gone
// callback a Database registers to reap a table whose backend namespace
// disappeared (spec §4.6 edge case).
type Config struct {
	PollInterval time.Duration
	OnGone       func(namespace string)
}

// ManagedTable is one namespace's role-aware, catch-up-driven table (spec §3
// "Managed Table"). It starts as a Slave the moment it's opened and only
// becomes a Master once told to by set_role.
type ManagedTable struct {
	namespace string
	raw       *table.Raw
	store     *catchup.Store
	backend   catchup.BackendInterface
	cfg       Config

	mu       sync.RWMutex
	role     wire.Role
	ownerTag uint64
	nsidMap  map[uint32]string

	totalTLogsRead     atomic.Uint64
	incrementalUpdates atomic.Uint64
	fullRebuilds       atomic.Uint64

	// bgMu guards only the background task's handle (bgCancel/bgDone), kept
	// separate from mu so cancelling the task never has to wait behind a
	// goroutine that might itself be blocked acquiring mu (the background
	// loop takes mu.RLock after every tick). Cancellation moves the handle
	// out under bgMu, then blocks on it only after releasing both locks.
	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgDone   chan struct{}

	goneOnce sync.Once
}

// New creates a ManagedTable over an already-opened Raw Table, starting as
// Slave with owner_tag 0 and the background catch-up tick running.
func New(namespace string, raw *table.Raw, backend catchup.BackendInterface, cfg Config) *ManagedTable {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	m := &ManagedTable{
		namespace: namespace,
		raw:       raw,
		store:     catchup.NewStore(raw),
		backend:   backend,
		cfg:       cfg,
		role:      wire.RoleSlave,
	}
	m.startBackground()
	return m
}

func (m *ManagedTable) Namespace() string { return m.namespace }

func (m *ManagedTable) GetRole() wire.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.role
}

func (m *ManagedTable) GetOwnerTag() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownerTag
}

// SetRole transitions the table's role, per spec §4.5: the prior background
// catch-up action (if any) is canceled and SetRole waits for it to exit
// before returning, though the new role and owner tag are already visible
// while it waits; becoming Master then runs one synchronous catch-up so the
// Master starts out level with the backend.
//
// The cancel-then-join is split across mu: the background handle is
// canceled and moved out while mu is held, but mu is released before
// blocking on the goroutine's exit. The background loop re-acquires mu
// (RLock) on every tick, so joining it while still holding mu here would
// deadlock against a tick that's already past its select and waiting on
// that RLock.
func (m *ManagedTable) SetRole(ctx context.Context, role wire.Role, ownerTag uint64) error {
	m.mu.Lock()
	oldDone := m.cancelBackgroundLocked()
	m.role = role
	m.ownerTag = ownerTag

	if role == wire.RoleSlave {
		m.startBackgroundLocked()
		m.mu.Unlock()
		m.joinBackground(oldDone)
		return nil
	}
	m.mu.Unlock()
	m.joinBackground(oldDone)

	res, err := catchup.Run(ctx, m.store, m.backend, m.namespace, catchup.ModeIncremental, false)
	if err != nil {
		return err
	}
	m.recordCatchUp(res)
	return nil
}

// MultiSet writes records, enforcing the Slave-rejects-writes and
// owner-tag-fencing rules (spec §4.5).
func (m *ManagedTable) MultiSet(records []engine.Record, barrier bool, ownerTag uint64) error {
	m.mu.RLock()
	role, want := m.role, m.ownerTag
	m.mu.RUnlock()

	if role == wire.RoleSlave {
		return cmn.SlaveRejectedWrite(m.namespace)
	}
	if ownerTag != want {
		return cmn.OwnerTagMismatch(m.namespace, want, ownerTag)
	}
	return m.raw.MultiSet(records, barrier, ownerTag)
}

// MultiGet reads records; allowed regardless of role.
func (m *ManagedTable) MultiGet(keys [][]byte) ([][]byte, error) {
	return m.raw.MultiGet(keys)
}

// Clear wipes the namespace's data, subject to the same fencing as MultiSet.
func (m *ManagedTable) Clear(ownerTag uint64) error {
	m.mu.RLock()
	role, want := m.role, m.ownerTag
	m.mu.RUnlock()

	if role == wire.RoleSlave {
		return cmn.SlaveRejectedWrite(m.namespace)
	}
	if ownerTag != want {
		return cmn.OwnerTagMismatch(m.namespace, want, ownerTag)
	}
	return m.raw.Clear(ownerTag)
}

// StopBackground halts the background catch-up tick without touching
// storage, used when the owning process is shutting down but the namespace
// itself should remain intact for the next boot.
func (m *ManagedTable) StopBackground() {
	m.mu.Lock()
	done := m.cancelBackgroundLocked()
	m.mu.Unlock()
	m.joinBackground(done)
}

// Drop removes the table's storage family and halts its background action.
// The caller (Database) is responsible for removing it from the namespace
// registry.
func (m *ManagedTable) Drop() error {
	m.mu.Lock()
	done := m.cancelBackgroundLocked()
	m.mu.Unlock()
	m.joinBackground(done)
	return m.raw.Drop()
}

// CatchUp runs one catch-up pass; a Master skips it (it's already
// authoritative), per spec §4.6.
func (m *ManagedTable) CatchUp(ctx context.Context, dryRun bool) (*catchup.Result, error) {
	m.mu.RLock()
	role := m.role
	m.mu.RUnlock()
	if role == wire.RoleMaster {
		return &catchup.Result{}, nil
	}

	res, err := catchup.Run(ctx, m.store, m.backend, m.namespace, catchup.ModeIncremental, dryRun)
	if err != nil {
		m.handleCatchUpErr(err)
		return nil, err
	}
	if !dryRun {
		m.recordCatchUp(res)
	}
	return res, nil
}

// ApplyRelocations applies a relocation-log batch tagged with scrubID (spec
// §3 / §4.6). On a Master, this is a no-op when scrubID already matches the
// local scrub id (the relocation was already observed via ordinary
// catch-up), and a WrongRole error otherwise -- a Master never replays
// relocation logs out of band. On a Slave, it catches up first, then applies
// the logs; a failure while applying the logs clears the local store so the
// next catch-up is forced into a full rebuild (spec §4.6 "self-clear on slave
// failure"). A failure of that first catch-up is returned without clearing
// the store.
func (m *ManagedTable) ApplyRelocations(ctx context.Context, scrubID uuid.UUID, cloneID uint32, logs []string) error {
	m.mu.RLock()
	role := m.role
	m.mu.RUnlock()

	if role == wire.RoleMaster {
		local, err := m.store.ScrubID()
		if err != nil {
			return cmn.Storage("reading local scrub id", err)
		}
		if local == scrubID {
			return nil
		}
		return cmn.WrongRole(m.namespace, "cannot apply relocation logs on a master with a mismatched scrub id")
	}

	if res, err := catchup.Run(ctx, m.store, m.backend, m.namespace, catchup.ModeIncremental, false); err != nil {
		m.handleCatchUpErr(err)
		return err
	} else {
		m.recordCatchUp(res)
	}

	nsidMap := m.NSIDMap()
	if err := catchup.ApplyRelocationLogs(ctx, m.store, m.backend, m.namespace, nsidMap, cloneID, logs); err != nil {
		if clearErr := m.store.Clear(); clearErr != nil {
			mlog.Errorln("mtable: self-clear after failed relocation apply also failed for", m.namespace, ":", clearErr)
		}
		return err
	}
	return nil
}

// NSIDMap returns the cached clone-id -> backend-handle map accumulated from
// TLog metadata across every catch-up run so far (spec §3 "NSIDMap"). It is
// consulted, not rebuilt, when applying relocation logs.
func (m *ManagedTable) NSIDMap() map[uint32]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uint32]string, len(m.nsidMap))
	for k, v := range m.nsidMap {
		out[k] = v
	}
	return out
}

func (m *ManagedTable) GetCounters(reset bool) wire.Counters {
	c := wire.Counters{
		TotalTLogsRead:     m.totalTLogsRead.Load(),
		IncrementalUpdates: m.incrementalUpdates.Load(),
		FullRebuilds:       m.fullRebuilds.Load(),
	}
	if reset {
		m.totalTLogsRead.Store(0)
		m.incrementalUpdates.Store(0)
		m.fullRebuilds.Store(0)
	}
	return c
}

func (m *ManagedTable) recordCatchUp(res *catchup.Result) {
	if res == nil {
		return
	}
	m.totalTLogsRead.Add(res.NumTLogs)
	metrics.TLogsRead.WithLabelValues(m.namespace).Add(float64(res.NumTLogs))
	if res.FullRebuild {
		m.fullRebuilds.Add(1)
		metrics.FullRebuilds.WithLabelValues(m.namespace).Inc()
	} else {
		m.incrementalUpdates.Add(1)
		metrics.IncrementalUpdates.WithLabelValues(m.namespace).Inc()
	}
	if len(res.NSIDMap) > 0 {
		m.mu.Lock()
		if m.nsidMap == nil {
			m.nsidMap = make(map[uint32]string, len(res.NSIDMap))
		}
		catchup.MergeNSIDMap(m.nsidMap, res.NSIDMap)
		m.mu.Unlock()
	}
}

func (m *ManagedTable) handleCatchUpErr(err error) {
	if e := cmn.AsMDSError(err); e.Kind == cmn.KindNamespaceGone {
		m.goneOnce.Do(func() {
			if m.cfg.OnGone != nil {
				// Run apart from the caller: OnGone drops the table, and
				// dropping waits for the background loop, which may be the
				// caller itself.
				go m.cfg.OnGone(m.namespace)
			}
		})
	}
}

// startBackground must be called without mu held.
func (m *ManagedTable) startBackground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startBackgroundLocked()
}

func (m *ManagedTable) startBackgroundLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.bgMu.Lock()
	m.bgCancel = cancel
	m.bgDone = done
	m.bgMu.Unlock()

	go m.backgroundLoop(ctx, done)
}

// cancelBackgroundLocked signals the current background loop (if any) to
// stop and returns its completion channel, without waiting on it. Callers
// must release mu before waiting on the returned channel via joinBackground.
func (m *ManagedTable) cancelBackgroundLocked() chan struct{} {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	done := m.bgDone
	if m.bgCancel != nil {
		m.bgCancel()
		m.bgCancel = nil
		m.bgDone = nil
	}
	return done
}

// joinBackground blocks until a canceled background loop has fully exited.
// Must be called with mu NOT held.
func (m *ManagedTable) joinBackground(done chan struct{}) {
	if done != nil {
		<-done
	}
}

// backgroundLoop periodically re-runs catch-up while the table is a Slave.
// The first tick is delayed by a random fraction of the poll interval so a
// fleet of tables opened at the same moment doesn't hammer the backend in
// lockstep (spec §4.6 "randomized ramp-up").
func (m *ManagedTable) backgroundLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	rampUp := time.Duration(rand.Int63n(int64(m.cfg.PollInterval)))
	t := time.NewTimer(rampUp)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		m.mu.RLock()
		role := m.role
		m.mu.RUnlock()
		if role == wire.RoleSlave {
			res, err := catchup.Run(ctx, m.store, m.backend, m.namespace, catchup.ModeIncremental, false)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				mlog.Warnln("mtable: background catch-up failed for", m.namespace, ":", err)
				m.handleCatchUpErr(err)
			} else {
				m.recordCatchUp(res)
			}
		}

		t.Reset(m.cfg.PollInterval)
	}
}
