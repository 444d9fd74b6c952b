package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// Handler is everything the transport layer needs from the rest of the MDS
// to service one request; DBHandler (dbhandler.go), which wraps a
// db.Database, is the production implementation, but keeping this as an
// interface lets transport be tested without a real Database.
type Handler interface {
	Drop(namespace string) error
	Clear(namespace string, ownerTag uint64) error
	List() []string
	MultiGet(namespace string, keys [][]byte) ([][]byte, error)
	MultiSet(namespace string, records []wire.Record, barrier bool, ownerTag uint64) error
	SetRole(ctx context.Context, namespace string, role wire.Role, ownerTag uint64) error
	GetRole(namespace string) (wire.Role, error)
	Open(namespace string) error
	ApplyRelocationLogs(ctx context.Context, namespace string, scrubID uuid.UUID, cloneID uint32, logs []string) error
	CatchUp(ctx context.Context, namespace string, dryRun bool) (*catchup.Result, error)
	GetTableCounters(namespace string, reset bool) (wire.Counters, error)
	GetOwnerTag(namespace string) (uint64, error)
}
