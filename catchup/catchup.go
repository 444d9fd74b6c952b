package catchup

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/cmn"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/engine"
)

// Mode selects how CatchUp decides between incremental replay and a full
// rebuild (spec §4.6 "mode ∈ {incremental-with-scrub-check, force-full,
// dry-run}"); DryRun is modeled as an orthogonal flag on Run since it can
// combine with either mode.
type Mode int

const (
	ModeIncremental Mode = iota
	ModeForceFull
)

// ErrCorkNotFound is returned by a BackendInterface.ListTLogs implementation
// when sinceCork isn't reachable on the backend's current chain, per spec
// §4.6 step 3 ("If the local cork is not encountered, promote to full
// rebuild").
var ErrCorkNotFound = errors.New("catchup: local cork not found on backend chain")

// Result reports what one CatchUp run did.
type Result struct {
	NumTLogs    uint64
	FullRebuild bool
	// NSIDMap collects every clone-id -> backend-handle entry carried by the
	// TLogs replayed during this run (spec §3/§4.6 "Return {num_tlogs,
	// full_rebuild, nsid_map}"). Callers cache it across runs; entries never
	// change once set, so ManagedTable merges it additively rather than
	// replacing its cache.
	NSIDMap map[uint32]string
}

// MergeNSIDMap folds src into dst, keeping dst's existing entry for any
// clone id present in both (an ancestor's backend handle never changes once
// recorded, mirroring the original "build the nsid map only once" comment).
// dst must be non-nil.
func MergeNSIDMap(dst, src map[uint32]string) {
	for cloneID, handle := range src {
		if _, ok := dst[cloneID]; !ok {
			dst[cloneID] = handle
		}
	}
}

// Run executes one catch-up pass against namespace, per the six-step
// algorithm in spec §4.6.
func Run(ctx context.Context, store *Store, backend BackendInterface, namespace string, mode Mode, dryRun bool) (*Result, error) {
	exists, err := backend.Exists(ctx, namespace)
	if err != nil {
		return nil, cmn.Generic("checking namespace existence on backend", err)
	}
	if !exists {
		return nil, cmn.NamespaceGone(namespace)
	}

	_, backendScrub, err := backend.Tip(ctx, namespace)
	if err != nil {
		return nil, cmn.Generic("reading backend tip", err)
	}

	localScrub, err := store.ScrubID()
	if err != nil {
		return nil, cmn.Storage("reading local scrub id", err)
	}

	fullRebuild := mode == ModeForceFull || backendScrub != localScrub

	if !fullRebuild {
		res, err := runIncremental(ctx, store, backend, namespace, dryRun)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrCorkNotFound) {
			return nil, err
		}
		mlog.Warnln("catchup: local cork not on backend chain for", namespace, "- promoting to full rebuild")
		fullRebuild = true
	}

	return runFullRebuild(ctx, store, backend, namespace, backendScrub, dryRun)
}

func runIncremental(ctx context.Context, store *Store, backend BackendInterface, namespace string, dryRun bool) (*Result, error) {
	localCork, err := store.Cork()
	if err != nil {
		return nil, cmn.Storage("reading local cork", err)
	}

	refs, err := backend.ListTLogs(ctx, namespace, localCork)
	if err != nil {
		return nil, err // may be ErrCorkNotFound, handled by caller
	}

	if dryRun {
		return &Result{NumTLogs: uint64(len(refs))}, nil
	}

	var applied uint64
	nsidMap := map[uint32]string{}
	for _, ref := range refs {
		tlog, err := backend.FetchTLog(ctx, ref)
		if err != nil {
			// Propagate error, leaving local cork at the last fully applied
			// TLog so a retry resumes (spec §4.6 edge case).
			return nil, cmn.Generic("fetching tlog during incremental catchup", err)
		}
		if err := store.Apply(tlog); err != nil {
			return nil, cmn.Storage("applying tlog during incremental catchup", err)
		}
		MergeNSIDMap(nsidMap, tlog.NSIDMap)
		applied++
	}
	return &Result{NumTLogs: applied, FullRebuild: false, NSIDMap: nsidMap}, nil
}

func runFullRebuild(ctx context.Context, store *Store, backend BackendInterface, namespace string, scrubAtStart uuid.UUID, dryRun bool) (*Result, error) {
	root, err := backend.Root(ctx, namespace)
	if err != nil {
		return nil, cmn.Generic("resolving namespace root", err)
	}
	refs, err := backend.ListTLogs(ctx, namespace, uuid.Nil)
	if err != nil {
		return nil, cmn.Generic("listing full tlog chain", err)
	}
	// Root is always the first entry of a from-scratch listing; guard
	// against a backend that omits it.
	if len(refs) == 0 || refs[0].Name != root.Name {
		refs = append([]TLogRef{root}, refs...)
	}

	if dryRun {
		return &Result{NumTLogs: uint64(len(refs)), FullRebuild: true}, nil
	}

	if err := store.Clear(); err != nil {
		return nil, cmn.Storage("clearing store before full rebuild", err)
	}

	var applied uint64
	var lastCork uuid.UUID
	nsidMap := map[uint32]string{}
	for _, ref := range refs {
		tlog, err := backend.FetchTLog(ctx, ref)
		if err != nil {
			return nil, cmn.Generic("fetching tlog during full rebuild", err)
		}
		recs := tlog.Records
		if len(recs) > 0 {
			if err := store.Raw.MultiSet(toEngineRecords(recs), false, 0); err != nil {
				return nil, cmn.Storage("applying tlog during full rebuild", err)
			}
		}
		MergeNSIDMap(nsidMap, tlog.NSIDMap)
		lastCork = tlog.Ref.Cork
		applied++
	}

	// Re-check: if the backend's scrub generation moved again while we were
	// replaying, abort without finalizing cork/scrub id and let the next
	// scheduled tick re-evaluate (spec §4.6 edge case).
	_, scrubNow, err := backend.Tip(ctx, namespace)
	if err != nil {
		return nil, cmn.Generic("re-checking backend tip after full rebuild", err)
	}
	if scrubNow != scrubAtStart {
		return nil, cmn.Generic("backend scrub id changed mid-rebuild, aborting", nil)
	}

	if err := store.SetCork(lastCork); err != nil {
		return nil, cmn.Storage("finalizing cork after full rebuild", err)
	}
	if err := store.SetScrubID(scrubAtStart); err != nil {
		return nil, cmn.Storage("finalizing scrub id after full rebuild", err)
	}

	return &Result{NumTLogs: applied, FullRebuild: true, NSIDMap: nsidMap}, nil
}

func toEngineRecords(recs []Record) []engine.Record {
	out := make([]engine.Record, len(recs))
	for i, r := range recs {
		out[i] = engine.Record{Key: r.Key, Value: r.Value, Tombstone: r.Tombstone}
	}
	return out
}
