// Package catchup implements the Catch-Up Engine (spec §4.6): given a
// cached metadata store and a backend handle for one namespace, it either
// incrementally replays TLogs since the last cork or rebuilds the store
// from scratch when the scrub generation changed or the local cork fell off
// the backend's chain.
package catchup

import (
	"context"

	"github.com/google/uuid"
)

// TLogRef identifies one transaction-log object in the backend, without
// fetching its contents.
type TLogRef struct {
	Cork uuid.UUID // the cork recorded once this TLog is fully applied
	Name string
}

// TLog is a fetched transaction log: a sequence of cluster-map record
// updates for one namespace (spec GLOSSARY "TLog").
type TLog struct {
	Ref     TLogRef
	Records []Record
	// NSIDMap carries any clone-id -> backend-handle entries this TLog
	// introduces (spec §3 "NSIDMap... built by the catch-up engine from TLog
	// metadata"). Most TLogs carry none; it is non-nil only for the ones
	// that establish a new ancestor in the clone chain.
	NSIDMap map[uint32]string
}

// Record mirrors the engine's put/delete shape so the catch-up engine
// doesn't need to import the engine package directly.
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// BackendInterface is the abstract object-storage collaborator the MDS
// consumes (spec §1: "object-storage access: external"). Real
// implementations (S3, Azure, a volume driver's own backend) live outside
// this module; MemBackend (membackend.go) is an in-memory implementation that
// drives the §8 scenarios in tests and stands in as cmd/mdsd's backend.
type BackendInterface interface {
	// Exists reports whether the namespace still exists on the backend.
	Exists(ctx context.Context, namespace string) (bool, error)
	// Tip returns the backend's current chain tip cork and the scrub id
	// tagging the current relocation generation.
	Tip(ctx context.Context, namespace string) (cork, scrubID uuid.UUID, err error)
	// ListTLogs returns TLog references from just after sinceCork up to the
	// tip, oldest first. If sinceCork is the zero UUID, every TLog from the
	// namespace root is returned.
	ListTLogs(ctx context.Context, namespace string, sinceCork uuid.UUID) ([]TLogRef, error)
	// FetchTLog retrieves one TLog's contents.
	FetchTLog(ctx context.Context, ref TLogRef) (*TLog, error)
	// Root returns the reference for the oldest TLog in the namespace's
	// clone chain (spec §4.6 step 4: "starting from the oldest parent").
	Root(ctx context.Context, namespace string) (TLogRef, error)
}
