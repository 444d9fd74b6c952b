package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/db"
	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

// DBHandler adapts a db.Database into a Handler, translating wire-level
// requests into ManagedTable calls.
type DBHandler struct {
	DB *db.Database
}

var _ Handler = (*DBHandler)(nil)

func (h *DBHandler) Drop(namespace string) error {
	return h.DB.Drop(namespace)
}

func (h *DBHandler) Clear(namespace string, ownerTag uint64) error {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return err
	}
	return mt.Clear(ownerTag)
}

func (h *DBHandler) List() []string {
	return h.DB.ListNamespaces()
}

func (h *DBHandler) MultiGet(namespace string, keys [][]byte) ([][]byte, error) {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return nil, err
	}
	return mt.MultiGet(keys)
}

func (h *DBHandler) MultiSet(namespace string, records []wire.Record, barrier bool, ownerTag uint64) error {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return err
	}
	recs := make([]engine.Record, len(records))
	for i, r := range records {
		recs[i] = engine.Record{Key: r.Key, Value: r.Value, Tombstone: r.Tombstone}
	}
	return mt.MultiSet(recs, barrier, ownerTag)
}

func (h *DBHandler) SetRole(ctx context.Context, namespace string, role wire.Role, ownerTag uint64) error {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return err
	}
	return mt.SetRole(ctx, role, ownerTag)
}

func (h *DBHandler) GetRole(namespace string) (wire.Role, error) {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return 0, err
	}
	return mt.GetRole(), nil
}

func (h *DBHandler) Open(namespace string) error {
	_, err := h.DB.OpenNamespace(namespace)
	return err
}

func (h *DBHandler) ApplyRelocationLogs(ctx context.Context, namespace string, scrubID uuid.UUID, cloneID uint32, logs []string) error {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return err
	}
	return mt.ApplyRelocations(ctx, scrubID, cloneID, logs)
}

func (h *DBHandler) CatchUp(ctx context.Context, namespace string, dryRun bool) (*catchup.Result, error) {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return nil, err
	}
	return mt.CatchUp(ctx, dryRun)
}

func (h *DBHandler) GetTableCounters(namespace string, reset bool) (wire.Counters, error) {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return wire.Counters{}, err
	}
	return mt.GetCounters(reset), nil
}

func (h *DBHandler) GetOwnerTag(namespace string) (uint64, error) {
	mt, err := h.DB.Find(namespace)
	if err != nil {
		return 0, err
	}
	return mt.GetOwnerTag(), nil
}
