package catchup

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemBackend is an in-memory BackendInterface, used by tests and by any
// caller that wants to drive the catch-up engine without a real
// object-storage collaborator wired in.
type MemBackend struct {
	mu sync.Mutex

	// namespaces maps a namespace name to its ordered chain of TLogs,
	// oldest first, plus the scrub id tagging its current relocation
	// generation. Clone-id -> backend-handle entries ride along on
	// individual TLogs (TLog.NSIDMap), the way a real backend's TLog
	// metadata would carry them, rather than in a side table.
	namespaces map[string]*memNamespace
}

type memNamespace struct {
	chain   []TLog
	scrubID uuid.UUID
}

func NewMemBackend() *MemBackend {
	return &MemBackend{namespaces: make(map[string]*memNamespace)}
}

var _ BackendInterface = (*MemBackend)(nil)

// CreateNamespace registers a namespace with an empty chain and a fresh
// scrub id.
func (b *MemBackend) CreateNamespace(namespace string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.namespaces[namespace] = &memNamespace{scrubID: uuid.New()}
}

// DeleteNamespace removes a namespace, so a subsequent Exists reports false.
func (b *MemBackend) DeleteNamespace(namespace string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.namespaces, namespace)
}

// AppendTLog pushes a new TLog onto the chain tip, returning its ref.
func (b *MemBackend) AppendTLog(namespace string, records []Record) TLogRef {
	return b.AppendTLogWithNSID(namespace, records, nil)
}

// AppendTLogWithNSID pushes a new TLog that additionally introduces the
// given clone-id -> backend-handle entries, the way a real backend's TLog
// metadata establishes a new ancestor in a clone chain (spec §3 "NSIDMap...
// built by the catch-up engine from TLog metadata").
func (b *MemBackend) AppendTLogWithNSID(namespace string, records []Record, nsidMap map[uint32]string) TLogRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.namespaces[namespace]
	ref := TLogRef{Cork: uuid.New(), Name: fmt.Sprintf("%s/tlog-%d", namespace, len(ns.chain))}
	ns.chain = append(ns.chain, TLog{Ref: ref, Records: records, NSIDMap: nsidMap})
	return ref
}

// BumpScrubID simulates a relocation/scrub generation change, which forces
// the next catch-up to be a full rebuild.
func (b *MemBackend) BumpScrubID(namespace string) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.namespaces[namespace]
	ns.scrubID = uuid.New()
	return ns.scrubID
}

// TruncateBefore drops every TLog strictly before the given cork from the
// in-memory chain, simulating backend retention/compaction so a stale local
// cork falls off the chain and ErrCorkNotFound gets exercised.
func (b *MemBackend) TruncateBefore(namespace string, cork uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.namespaces[namespace]
	idx := -1
	for i, t := range ns.chain {
		if t.Ref.Cork == cork {
			idx = i
			break
		}
	}
	if idx > 0 {
		ns.chain = ns.chain[idx:]
	}
}

func (b *MemBackend) Exists(_ context.Context, namespace string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.namespaces[namespace]
	return ok, nil
}

func (b *MemBackend) Tip(_ context.Context, namespace string) (uuid.UUID, uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[namespace]
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("membackend: unknown namespace %q", namespace)
	}
	if len(ns.chain) == 0 {
		return uuid.Nil, ns.scrubID, nil
	}
	return ns.chain[len(ns.chain)-1].Ref.Cork, ns.scrubID, nil
}

func (b *MemBackend) ListTLogs(_ context.Context, namespace string, sinceCork uuid.UUID) ([]TLogRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[namespace]
	if !ok {
		return nil, fmt.Errorf("membackend: unknown namespace %q", namespace)
	}
	if sinceCork == uuid.Nil {
		refs := make([]TLogRef, len(ns.chain))
		for i, t := range ns.chain {
			refs[i] = t.Ref
		}
		return refs, nil
	}
	idx := -1
	for i, t := range ns.chain {
		if t.Ref.Cork == sinceCork {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrCorkNotFound
	}
	refs := make([]TLogRef, 0, len(ns.chain)-idx-1)
	for _, t := range ns.chain[idx+1:] {
		refs = append(refs, t.Ref)
	}
	return refs, nil
}

func (b *MemBackend) FetchTLog(_ context.Context, ref TLogRef) (*TLog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ns := range b.namespaces {
		for _, t := range ns.chain {
			if t.Ref.Name == ref.Name {
				cp := t
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("membackend: unknown tlog %q", ref.Name)
}

func (b *MemBackend) Root(_ context.Context, namespace string) (TLogRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[namespace]
	if !ok || len(ns.chain) == 0 {
		return TLogRef{}, fmt.Errorf("membackend: namespace %q has no tlogs", namespace)
	}
	return ns.chain[0].Ref, nil
}
